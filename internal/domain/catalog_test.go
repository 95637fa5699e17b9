package domain

import (
	"math"
	"testing"
)

func TestGeoPointValidate(t *testing.T) {
	tests := []struct {
		name    string
		point   GeoPoint
		wantErr bool
	}{
		{name: "makassar", point: GeoPoint{Lat: -5.1477, Lng: 119.4327}},
		{name: "poles", point: GeoPoint{Lat: 90, Lng: -180}},
		{name: "lat out of range", point: GeoPoint{Lat: 91, Lng: 0}, wantErr: true},
		{name: "lng out of range", point: GeoPoint{Lat: 0, Lng: 180.5}, wantErr: true},
		{name: "nan", point: GeoPoint{Lat: math.NaN(), Lng: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.point.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOutletRoutable(t *testing.T) {
	loc := &GeoPoint{Lat: 1, Lng: 1}
	if !(Outlet{Active: true, Location: loc}).Routable() {
		t.Fatal("active outlet with location must be routable")
	}
	if (Outlet{Active: false, Location: loc}).Routable() {
		t.Fatal("inactive outlet must not be routable")
	}
	if (Outlet{Active: true}).Routable() {
		t.Fatal("outlet without location must not be routable")
	}
}

func TestCustomerHasReferrer(t *testing.T) {
	id := int64(7)
	if !(Customer{ReferrerID: &id}).HasReferrer() {
		t.Fatal("expected referrer")
	}
	if (Customer{}).HasReferrer() {
		t.Fatal("expected no referrer")
	}
}
