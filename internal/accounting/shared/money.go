package shared

import "github.com/shopspring/decimal"

const (
	// MoneyScale is the precision of journal amounts.
	MoneyScale = 2
	// UnitCostScale is the precision of inventory unit costs.
	UnitCostScale = 6
	// QtyScale is the precision of inventory quantities.
	QtyScale = 2
)

// RoundMoney rounds half away from zero to two places.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyScale)
}

// RoundUnitCost rounds to six places.
func RoundUnitCost(v decimal.Decimal) decimal.Decimal {
	return v.Round(UnitCostScale)
}

// RoundQty rounds to two places.
func RoundQty(v decimal.Decimal) decimal.Decimal {
	return v.Round(QtyScale)
}
