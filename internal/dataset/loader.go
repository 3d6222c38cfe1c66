// Package dataset loads the inputs of a backtest run from an archive store
// and writes finished results back to it.
package dataset

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/metrics"
	"github.com/newthinker/rankfolio/internal/money"
	"github.com/newthinker/rankfolio/internal/storage/archive"
	"go.uber.org/zap"
)

// Keys names the dataset objects inside the store. Meta and FX are
// optional.
type Keys struct {
	Prices string
	Meta   string
	FX     string
}

// Dataset is everything the runner reads besides settings.
type Dataset struct {
	Prices *core.PriceMatrix
	Meta   core.SymbolMeta
	FX     *money.FX
}

// Loader reads dataset objects through an archive.Storage.
type Loader struct {
	store   archive.Storage
	metrics *metrics.Registry
	logger  *zap.Logger
}

// NewLoader creates a loader. reg and logger may be nil.
func NewLoader(store archive.Storage, reg *metrics.Registry, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, metrics: reg, logger: logger}
}

// Load reads prices, then metadata, then the FX series. A missing metadata
// object leaves every symbol on the US defaults; a missing FX object falls
// back to money.DefaultRate.
func (l *Loader) Load(ctx context.Context, keys Keys) (*Dataset, error) {
	ds := &Dataset{Meta: core.SymbolMeta{}}

	err := l.timed("prices", func() error {
		data, err := l.store.Read(ctx, keys.Prices)
		if err != nil {
			return err
		}
		ds.Prices, err = ParsePrices(bytes.NewReader(data))
		return err
	})
	if err != nil {
		return nil, err
	}

	if keys.Meta != "" {
		err := l.timed("meta", func() error {
			data, err := l.store.Read(ctx, keys.Meta)
			if err != nil {
				return err
			}
			ds.Meta, err = ParseMeta(data)
			return err
		})
		if errors.Is(err, core.ErrNoData) {
			l.logger.Warn("symbol metadata not found, defaulting to US", zap.String("key", keys.Meta))
		} else if err != nil {
			return nil, err
		}
	}

	var series map[time.Time]float64
	if keys.FX != "" {
		err := l.timed("fx", func() error {
			data, err := l.store.Read(ctx, keys.FX)
			if err != nil {
				return err
			}
			series, err = ParseFX(bytes.NewReader(data))
			return err
		})
		if errors.Is(err, core.ErrNoData) {
			l.logger.Warn("fx series not found, using default rate",
				zap.String("key", keys.FX), zap.Float64("rate", money.DefaultRate))
		} else if err != nil {
			return nil, err
		}
	}
	ds.FX = money.NewFX(series)

	first, last, _ := ds.FX.DateRange()
	l.logger.Info("dataset loaded",
		zap.Int("dates", ds.Prices.Len()),
		zap.Int("symbols", len(ds.Prices.Symbols())),
		zap.Int("meta", len(ds.Meta)),
		zap.String("fx_first", first),
		zap.String("fx_last", last),
	)
	return ds, nil
}

func (l *Loader) timed(object string, fn func() error) error {
	start := time.Now()
	err := fn()
	if l.metrics != nil {
		l.metrics.RecordDatasetLoad(object, err, time.Since(start).Seconds())
	}
	if err != nil {
		l.logger.Debug("dataset object failed", zap.String("object", object), zap.Error(err))
	}
	return err
}
