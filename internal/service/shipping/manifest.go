package shipping

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/audit"
	"github.com/Additional-Code/fulfillment/internal/cache"
	"github.com/Additional-Code/fulfillment/internal/entity"
	packingrepo "github.com/Additional-Code/fulfillment/internal/repository/packing"
)

// GenerateManifest builds the manifest of a shipment from its current
// packages, stores it on the shipment and caches it.
func (s *Service) GenerateManifest(ctx context.Context, shipmentID uuid.UUID, actor uuid.UUID) (*entity.Manifest, error) {
	ctx, span := serviceTracer.Start(ctx, "ShippingService.GenerateManifest", trace.WithAttributes(attribute.String("shipment.id", shipmentID.String())))
	defer span.End()

	var manifest *entity.Manifest
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		shipment, err := s.load(ctx, tx, shipmentID, true)
		if err != nil {
			return err
		}
		if manifest, err = s.buildManifest(ctx, tx, shipment); err != nil {
			return err
		}
		shipment.Manifest = manifest
		if err := s.repo.Update(ctx, tx, shipment, "manifest"); err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, tx, audit.Entry{
			EntityType: entity.EntityShipment,
			EntityID:   shipment.ID,
			Action:     audit.ActionManifestGenerated,
			Actor:      actor,
			NewValues:  map[string]any{"package_count": len(manifest.Packages)},
			Notes:      "Shipping manifest generated",
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to generate manifest")
	}

	s.cacheManifest(ctx, shipmentID, manifest)
	return manifest, nil
}

// GetManifest returns the cached manifest, then the stored one, and
// generates a fresh manifest when neither exists.
func (s *Service) GetManifest(ctx context.Context, shipmentID uuid.UUID) (*entity.Manifest, error) {
	ctx, span := serviceTracer.Start(ctx, "ShippingService.GetManifest", trace.WithAttributes(attribute.String("shipment.id", shipmentID.String())))
	defer span.End()

	var cached entity.Manifest
	switch err := cache.GetJSON(ctx, s.cache, ManifestCacheKey(shipmentID), &cached); {
	case err == nil:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return &cached, nil
	case !errors.Is(err, cache.ErrCacheMiss) && s.logger != nil:
		s.logger.Warn("manifest cache read failed", zap.String("shipment_id", shipmentID.String()), zap.Error(err))
	}

	shipment, err := s.load(ctx, s.db.Reader, shipmentID, false)
	if err != nil {
		return nil, s.fail(span, err, "failed to load shipment")
	}
	if shipment.Manifest != nil {
		s.cacheManifest(ctx, shipmentID, shipment.Manifest)
		return shipment.Manifest, nil
	}
	return s.GenerateManifest(ctx, shipmentID, uuid.Nil)
}

func (s *Service) buildManifest(ctx context.Context, db bun.IDB, shipment *entity.Shipment) (*entity.Manifest, error) {
	order, err := s.orders.Load(ctx, db, shipment.OrderID, false)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Items(ctx, db, shipment.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.PackageID
	}

	byID := make(map[uuid.UUID]*entity.Package, len(rows))
	contents := make(map[uuid.UUID][]entity.PackageItem, len(rows))
	if len(ids) > 0 {
		pkgs, err := s.packing.ListPackages(ctx, db, packingrepo.PackageFilter{IDs: ids})
		if err != nil {
			return nil, err
		}
		for i := range pkgs {
			byID[pkgs[i].ID] = &pkgs[i]
		}
		lines, err := s.packing.Items(ctx, db, ids...)
		if err != nil {
			return nil, err
		}
		for _, l := range lines {
			contents[l.PackageID] = append(contents[l.PackageID], l)
		}
	}
	items, err := s.items.Items(ctx, db, order.ID)
	if err != nil {
		return nil, err
	}
	products := make(map[uuid.UUID]*entity.OrderItem, len(items))
	for i := range items {
		products[items[i].ID] = &items[i]
	}

	m := &entity.Manifest{
		ShipmentNumber: shipment.ShipmentNumber,
		OrderNumber:    order.OrderNumber,
		Carrier:        shipment.Carrier,
		TrackingNumber: shipment.TrackingNumber,
		Status:         shipment.Status,
		ShipFrom:       shipment.ShipFromAddress,
		ShipTo:         shipment.ShipToAddress,
		TotalWeight:    shipment.TotalWeight,
		GeneratedAt:    s.now(),
		Packages:       make([]entity.ManifestPackage, 0, len(rows)),
	}
	if shipment.TotalVolume.Valid {
		v := shipment.TotalVolume.Decimal
		m.TotalVolume = &v
	}
	if !shipment.EstimatedDeliveryDate.IsZero() {
		t := shipment.EstimatedDeliveryDate.Time
		m.EstimatedDelivery = &t
	}

	for _, r := range rows {
		pkg, ok := byID[r.PackageID]
		if !ok {
			continue
		}
		mp := entity.ManifestPackage{
			SequenceNumber: r.SequenceNumber,
			PackageNumber:  pkg.PackageNumber,
			PackageType:    pkg.PackageType,
			Dimensions: entity.ManifestDimensions{
				Length: decimalPtr(pkg.Length),
				Width:  decimalPtr(pkg.Width),
				Height: decimalPtr(pkg.Height),
			},
			Weight: pkg.GrossWeight,
			Items:  make([]entity.ManifestItem, 0, len(contents[pkg.ID])),
		}
		for _, c := range contents[pkg.ID] {
			line := entity.ManifestItem{Quantity: c.Quantity}
			if p, ok := products[c.OrderItemID]; ok {
				line.ProductSKU = p.ProductSKU
				line.ProductName = p.ProductName
				line.UnitPrice = p.UnitPrice
				line.LineTotal = c.Quantity.Mul(p.UnitPrice).Round(2)
			}
			mp.Items = append(mp.Items, line)
		}
		m.Packages = append(m.Packages, mp)
	}
	return m, nil
}

func (s *Service) cacheManifest(ctx context.Context, shipmentID uuid.UUID, m *entity.Manifest) {
	if err := cache.SetJSON(ctx, s.cache, ManifestCacheKey(shipmentID), m, s.manifestTTL); err != nil && s.logger != nil {
		s.logger.Warn("manifest cache write failed", zap.String("shipment_id", shipmentID.String()), zap.Error(err))
	}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
