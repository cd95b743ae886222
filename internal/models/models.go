// Package models defines the core data types shared across the application.
package models

import "time"

// ProductType represents the order product category.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"
	ProductCNC  ProductType = "CNC"
	ProductNRML ProductType = "NRML"
)

// ValidProduct reports whether p is a known product category.
func ValidProduct(p ProductType) bool {
	switch p {
	case ProductMIS, ProductCNC, ProductNRML:
		return true
	}
	return false
}

// Order status values. An order starts as PENDING and is moved to a terminal
// status by the worker exactly once.
const (
	StatusPending  = "PENDING"
	StatusComplete = "COMPLETE"
	StatusRejected = "REJECTED"
)

// Order represents a user-submitted trade instruction.
//
// TaskID is empty until the order has been dispatched to the worker and is
// set at most once. Status is updated out-of-band by the worker.
type Order struct {
	ID         string
	Instrument string
	Lots       int
	Stoploss   float64
	Product    ProductType
	Expiry     time.Time
	Date       time.Time
	TaskID     string
	Status     string
}

// JobStatus describes the reconciled state of an asynchronous trade job.
// Successful is nil while the job has not finished.
type JobStatus struct {
	Ready      bool        `json:"ready"`
	Successful *bool       `json:"successful"`
	Value      interface{} `json:"value"`
}
