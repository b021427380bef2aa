package server

// ComputeTradeImpact accumulates the four direction-by-product totals over
// the records owned by country. Pure; no side effects.
func ComputeTradeImpact(agreements []*TradeAgreement, country string) TradeImpact {
	var impact TradeImpact
	for _, ta := range agreements {
		if ta.Country != country {
			continue
		}
		switch {
		case ta.Product == ProductCommodity && ta.Type == TradeImport:
			impact.CommodityImports += ta.Value
		case ta.Product == ProductCommodity && ta.Type == TradeExport:
			impact.CommodityExports += ta.Value
		case ta.Product == ProductManufacture && ta.Type == TradeImport:
			impact.ManufactureImports += ta.Value
		case ta.Product == ProductManufacture && ta.Type == TradeExport:
			impact.ManufactureExports += ta.Value
		}
	}
	return impact
}

// recalcBalancesLocked derives the country's sectoral balances and trade
// statistics from the current ledger. This is the single point where ledger
// state becomes economic state; balances are never set elsewhere. Callers
// hold room.mu.
func recalcBalancesLocked(room *Room, country string) {
	eco := room.economyLocked(country)
	impact := ComputeTradeImpact(room.TradeAgreements, country)
	eco.TradeStats = impact
	eco.CommoditiesBalance = eco.CommodityOutput + impact.CommodityImports - impact.CommodityExports - eco.CommodityNeeds
	eco.ManufacturesBalance = eco.ManufactureOutput + impact.ManufactureImports - impact.ManufactureExports - eco.ManufactureNeeds
}

// SetCountryProduction seeds a country's output and needs, then rederives
// its balances from the ledger.
func (e *Engine) SetCountryProduction(roomName, country string, eco CountryEconomy) error {
	room, ok := e.registry.Get(roomName)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	record := room.economyLocked(country)
	record.CommodityOutput = eco.CommodityOutput
	record.CommodityNeeds = eco.CommodityNeeds
	record.ManufactureOutput = eco.ManufactureOutput
	record.ManufactureNeeds = eco.ManufactureNeeds
	recalcBalancesLocked(room, country)
	room.mu.Unlock()
	return nil
}
