// Package market holds the scraped KAMIS price data model and the CSV
// history store shared by the training pipeline and the API service.
package market

import "time"

// Sale units inferred from the raw retail cell.
const (
	UnitKG   = "kg"
	UnitBag  = "bag"
	UnitHead = "head"
)

// Row is one record of the raw scraped history, prices still in their
// scraped string form ("150/kg", "2,500", "-").
type Row struct {
	Date         time.Time
	Commodity    string
	Market       string
	County       string
	Retail       string
	Wholesale    string
	SupplyVolume string
}

// PriceObservation is a normalized row. Retail/Wholesale are NaN when
// the scraped cell could not be coerced to a number.
type PriceObservation struct {
	Date         time.Time
	Commodity    string
	Market       string
	County       string
	Retail       float64
	Wholesale    float64
	Unit         string
	SupplyVolume float64
}

// EntityKey identifies one tracked price series.
type EntityKey struct {
	Commodity string
	Market    string
	County    string
}

func (r Row) Entity() EntityKey {
	return EntityKey{Commodity: r.Commodity, Market: r.Market, County: r.County}
}

func (o PriceObservation) Entity() EntityKey {
	return EntityKey{Commodity: o.Commodity, Market: o.Market, County: o.County}
}
