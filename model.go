package main

import "time"

// Admin response codes.
const (
	C_OK   = "0"
	C_FAIL = "1"
	C_AUTH = "2"
)

type AdminResult struct {
	Code string      `json:"code"`
	Data interface{} `json:"data"`
}

type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
