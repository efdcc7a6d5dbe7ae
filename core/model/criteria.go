package model

import "time"

// SelectionCriteria is the per-request value object driving one vendor
// selection. It is constructed once and never mutated.
type SelectionCriteria struct {
	CompanyID        string      `json:"company_id"`
	BranchID         string      `json:"branch_id"`
	OrderID          string      `json:"order_id"`
	CustomerLocation Coordinates `json:"customer_location"`
	OrderValue       float64     `json:"order_value"`
	Urgent           bool        `json:"urgent"`
	// MaxDeliveryTime caps the acceptable quoted delivery time. Zero means
	// no constraint.
	MaxDeliveryTime time.Duration `json:"max_delivery_time"`
	// MaxDeliveryFee caps the acceptable quoted fee. Zero means no
	// constraint.
	MaxDeliveryFee float64 `json:"max_delivery_fee"`
}
