package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

var clientTracer = otel.Tracer("github.com/Additional-Code/fulfillment/inventory")

// HTTPAdapter talks to an external inventory service over JSON/HTTP.
type HTTPAdapter struct {
	HTTP    *http.Client
	BaseURL string
}

// NewHTTPAdapter builds a client with the given request timeout.
func NewHTTPAdapter(baseURL string, timeout time.Duration) *HTTPAdapter {
	return &HTTPAdapter{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

type availabilityResponse struct {
	Locations []Location `json:"locations"`
}

type unavailableResponse struct {
	ProductSKU        string          `json:"product_sku"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
}

type reserveRequest struct {
	SKU       string          `json:"sku"`
	Quantity  decimal.Decimal `json:"quantity"`
	Location  string          `json:"location"`
	Reference string          `json:"reference"`
}

func (a *HTTPAdapter) CheckAvailability(ctx context.Context, sku string, quantity decimal.Decimal, warehouseID uuid.UUID) ([]Location, error) {
	ctx, span := clientTracer.Start(ctx, "InventoryHTTP.CheckAvailability", trace.WithAttributes(
		attribute.String("inventory.sku", sku),
		attribute.String("inventory.warehouse_id", warehouseID.String()),
	))
	defer span.End()

	q := url.Values{}
	q.Set("sku", sku)
	q.Set("quantity", quantity.String())
	q.Set("warehouse_id", warehouseID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/inventory/availability?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := a.HTTP.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("inventory availability: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		var body availabilityResponse
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode availability: %w", err)
		}
		if len(body.Locations) == 0 {
			return nil, errorbank.InventoryUnavailable(sku, quantity.String(), decimal.Zero.String())
		}
		return body.Locations, nil
	case http.StatusConflict, http.StatusNotFound:
		var body unavailableResponse
		_ = json.NewDecoder(res.Body).Decode(&body)
		return nil, errorbank.InventoryUnavailable(sku, quantity.String(), body.AvailableQuantity.String())
	default:
		span.SetStatus(codes.Error, res.Status)
		return nil, fmt.Errorf("inventory availability error: %s", res.Status)
	}
}

func (a *HTTPAdapter) Reserve(ctx context.Context, sku string, quantity decimal.Decimal, location, reference string) (Reservation, error) {
	ctx, span := clientTracer.Start(ctx, "InventoryHTTP.Reserve", trace.WithAttributes(
		attribute.String("inventory.sku", sku),
		attribute.String("inventory.location", location),
	))
	defer span.End()

	body, err := json.Marshal(reserveRequest{SKU: sku, Quantity: quantity, Location: location, Reference: reference})
	if err != nil {
		return Reservation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/inventory/reservations", bytes.NewReader(body))
	if err != nil {
		return Reservation{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := a.HTTP.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return Reservation{}, fmt.Errorf("inventory reserve: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var out Reservation
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return Reservation{}, fmt.Errorf("decode reservation: %w", err)
		}
		return out, nil
	case http.StatusConflict:
		var body unavailableResponse
		_ = json.NewDecoder(res.Body).Decode(&body)
		return Reservation{}, errorbank.InventoryUnavailable(sku, quantity.String(), body.AvailableQuantity.String())
	default:
		span.SetStatus(codes.Error, res.Status)
		return Reservation{}, fmt.Errorf("inventory reserve error: %s", res.Status)
	}
}

func (a *HTTPAdapter) Release(ctx context.Context, reservationID string) (bool, error) {
	ctx, span := clientTracer.Start(ctx, "InventoryHTTP.Release", trace.WithAttributes(
		attribute.String("inventory.reservation_id", reservationID),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		a.BaseURL+"/inventory/reservations/"+url.PathEscape(reservationID), nil)
	if err != nil {
		return false, err
	}
	res, err := a.HTTP.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return false, fmt.Errorf("inventory release: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return true, nil
	default:
		span.SetStatus(codes.Error, res.Status)
		return false, fmt.Errorf("inventory release error: %s", res.Status)
	}
}
