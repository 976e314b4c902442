/*
SPDX-License-Identifier: Apache-2.0
*/

// Package pricecurve maps elapsed auction time to the current Dutch auction price.
package pricecurve

import (
	"fmt"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/amount"
)

// Curve declines linearly from Start at OpenedAt to Floor at EndTime.
// Times are unix seconds.
type Curve struct {
	Start    uint64 `json:"start"`
	Floor    uint64 `json:"floor"`
	OpenedAt int64  `json:"openedAt"`
	EndTime  int64  `json:"endTime"`
}

// Validate checks the price bounds.
func (c Curve) Validate() error {
	if c.Floor > c.Start {
		return fmt.Errorf("floor price %d exceeds start price %d", c.Floor, c.Start)
	}
	return nil
}

// At returns the price at now. It is non-increasing in now and is exactly
// Floor for every now >= EndTime.
func (c Curve) At(now int64) uint64 {
	if c.Floor >= c.Start {
		return c.Floor
	}
	if now >= c.EndTime || c.EndTime <= c.OpenedAt {
		return c.Floor
	}
	if now <= c.OpenedAt {
		return c.Start
	}

	span := c.Start - c.Floor
	elapsed := uint64(now - c.OpenedAt)
	duration := uint64(c.EndTime - c.OpenedAt)

	// elapsed < duration here, so the drop is strictly below span.
	drop, err := amount.MulDiv(span, elapsed, duration)
	if err != nil {
		return c.Floor
	}
	return c.Start - drop
}
