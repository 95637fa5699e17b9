// Package pricing считает стоимость заказа по ценам каталога.
package pricing

import (
	"context"
	"fmt"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

// Priced содержит позиции с зафиксированными ценами и их сумму без доставки.
type Priced struct {
	Items      []domain.OrderItem
	ItemsTotal int64
}

// Pricer считает заказ только по ценам каталога; цены клиента не принимаются.
type Pricer struct{}

// NewPricer создаёт Pricer.
func NewPricer() *Pricer {
	return &Pricer{}
}

// PriceOrder загружает все товары одним запросом и считает позиции.
// Отсутствующий, неактивный или чужой для точки товар отклоняет весь заказ.
// Повторяющиеся товары объединяются в одну позицию.
func (p *Pricer) PriceOrder(ctx context.Context, catalog domain.ProductReader, outletID int64, items []domain.ItemRequest) (Priced, error) {
	if outletID <= 0 {
		return Priced{}, domain.ErrOutletRequired
	}
	if len(items) == 0 {
		return Priced{}, domain.ErrItemsRequired
	}

	merged, order, err := mergeLines(items)
	if err != nil {
		return Priced{}, err
	}

	products, err := catalog.ProductsForOutlet(ctx, outletID, order)
	if err != nil {
		return Priced{}, fmt.Errorf("load products: %w", err)
	}

	priced := Priced{Items: make([]domain.OrderItem, 0, len(order))}
	for _, productID := range order {
		product, ok := products[productID]
		if !ok || !product.Active || product.OutletID != outletID {
			return Priced{}, fmt.Errorf("product %d: %w", productID, domain.ErrInvalidProduct)
		}
		if product.PriceMinor < 0 {
			return Priced{}, fmt.Errorf("product %d: %w", productID, domain.ErrItemPriceInvalid)
		}

		qty := merged[productID]
		subtotal := int64(qty) * product.PriceMinor
		priced.Items = append(priced.Items, domain.OrderItem{
			ProductID:      productID,
			ProductName:    product.Name,
			Qty:            qty,
			UnitPriceMinor: product.PriceMinor,
			SubtotalMinor:  subtotal,
		})
		priced.ItemsTotal += subtotal
	}

	return priced, nil
}

// mergeLines суммирует количество по товару и сохраняет порядок первого появления.
func mergeLines(items []domain.ItemRequest) (map[int64]int32, []int64, error) {
	merged := make(map[int64]int32, len(items))
	order := make([]int64, 0, len(items))
	for idx, item := range items {
		if item.ProductID <= 0 {
			return nil, nil, fmt.Errorf("item[%d]: %w", idx, domain.ErrInvalidProduct)
		}
		if item.Qty <= 0 {
			return nil, nil, fmt.Errorf("item[%d]: %w", idx, domain.ErrItemQtyInvalid)
		}
		if _, seen := merged[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		merged[item.ProductID] += item.Qty
	}
	return merged, order, nil
}
