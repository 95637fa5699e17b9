package domain

import (
	"math"
	"time"
)

// GeoPoint задаёт координаты в градусах WGS84.
type GeoPoint struct {
	Lat float64
	Lng float64
}

// Validate проверяет диапазоны широты и долготы.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return ErrCoordinatesInvalid
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return ErrCoordinatesInvalid
	}
	return nil
}

// Outlet — точка продаж с параметрами доставки.
// Location пустой, если у точки нет активной геопозиции.
type Outlet struct {
	ID              int64
	Name            string
	Active          bool
	Location        *GeoPoint
	ServiceRadiusKm float64
	FreeRadiusKm    float64
	FeePerKm        int64
}

// Routable сообщает, участвует ли точка в подборе.
func (o Outlet) Routable() bool {
	return o.Active && o.Location != nil
}

// Product — товар каталога конкретной точки.
type Product struct {
	ID         int64
	OutletID   int64
	Name       string
	PriceMinor int64
	Active     bool
}

// Customer — клиент с реферальными данными.
type Customer struct {
	ID            int64
	Phone         string
	Name          string
	ReferralCode  string
	ReferrerID    *int64
	ReferralCount int64
	CreatedAt     time.Time
}

// HasReferrer сообщает, пришёл ли клиент по реферальному коду.
func (c Customer) HasReferrer() bool {
	return c.ReferrerID != nil && *c.ReferrerID > 0
}
