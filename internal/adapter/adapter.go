// Package adapter implements one position reader per integrated
// protocol. Every adapter exposes the same two-phase contract: list
// the raw on-chain constituents, then value each one in the reference
// asset. Valuation failures degrade the single constituent, never the
// adapter.
package adapter

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

// Converter turns a token amount into reference-asset units. Satisfied
// by pricing.Service.
type Converter interface {
	ToReference(ctx context.Context, network string, token entity.Token, amount *big.Int) (entity.ConversionResult, error)
}

// valueAll runs the converter over every position. A failed conversion
// becomes an explicit marker carrying the error text; the constituent
// stays in the result so the snapshot shows what could not be valued.
func valueAll(ctx context.Context, converter Converter, logger *zap.Logger, positions []entity.Position) []entity.ValuedPosition {
	valued := make([]entity.ValuedPosition, 0, len(positions))
	for _, position := range positions {
		if position.ReadError != "" {
			valued = append(valued, entity.ValuedPosition{
				Position:   position,
				Conversion: entity.FailedConversion(position.RawAmount, position.Token.Symbol, position.ReadError),
			})
			continue
		}
		conversion, err := converter.ToReference(ctx, position.Network, position.Token, position.RawAmount)
		if err != nil {
			logger.Warn("Failed to value position",
				zap.String("protocol", position.Protocol),
				zap.String("network", position.Network),
				zap.String("token", position.Token.Symbol),
				zap.Error(err))
			conversion = entity.FailedConversion(position.RawAmount, position.Token.Symbol, err.Error())
		}
		valued = append(valued, entity.ValuedPosition{Position: position, Conversion: conversion})
	}
	return valued
}
