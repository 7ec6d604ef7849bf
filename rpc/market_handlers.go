package rpc

const maxSalesPage = 500

type marketListParams struct {
	Caller  string   `json:"caller"`
	AssetID uint64   `json:"assetId"`
	Price   string   `json:"price"`
	Buyers  []string `json:"buyers,omitempty"`
}

type marketAssetParams struct {
	Caller  string `json:"caller,omitempty"`
	AssetID uint64 `json:"assetId"`
}

type marketBuyParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	Payment string `json:"payment"`
	Proof   string `json:"proof,omitempty"`
}

type marketSalesParams struct {
	From  uint64 `json:"from,omitempty"`
	Limit uint64 `json:"limit,omitempty"`
}

func (s *Server) handleMarketList(c *call) (interface{}, error) {
	var params marketListParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	listing, err := s.node.MarketList(caller, params.AssetID, price)
	if err != nil {
		return nil, err
	}
	return listingResult(listing), nil
}

func (s *Server) handleMarketListPrivate(c *call) (interface{}, error) {
	var params marketListParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	buyers, err := parseAccountList("buyers", params.Buyers)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	listing, err := s.node.MarketListPrivate(caller, params.AssetID, price, buyers)
	if err != nil {
		return nil, err
	}
	return listingResult(listing), nil
}

func (s *Server) handleMarketUpdatePrice(c *call) (interface{}, error) {
	var params marketListParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	listing, err := s.node.MarketUpdatePrice(caller, params.AssetID, price)
	if err != nil {
		return nil, err
	}
	return listingResult(listing), nil
}

func (s *Server) handleMarketDelist(c *call) (interface{}, error) {
	var params marketAssetParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	if err := s.node.MarketDelist(caller, params.AssetID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"assetId": params.AssetID, "delisted": true}, nil
}

func (s *Server) handleMarketBuy(c *call) (interface{}, error) {
	var params marketBuyParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	payment, err := parseAmount("payment", params.Payment)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	sale, err := s.node.MarketBuy(caller, params.AssetID, payment)
	if err != nil {
		return nil, err
	}
	return saleResult(sale), nil
}

func (s *Server) handleMarketBuyPrivate(c *call) (interface{}, error) {
	var params marketBuyParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	payment, err := parseAmount("payment", params.Payment)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	proofBytes, err := parseHexBytes("proof", params.Proof)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	sale, err := s.node.MarketBuyPrivate(c.ctx, caller, params.AssetID, payment, proofBytes)
	if err != nil {
		return nil, err
	}
	return saleResult(sale), nil
}

func (s *Server) handleMarketGetListing(c *call) (interface{}, error) {
	var params marketAssetParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	listing, err := s.node.MarketListing(params.AssetID)
	if err != nil {
		return nil, err
	}
	return listingResult(listing), nil
}

func (s *Server) handleMarketGetHistory(c *call) (interface{}, error) {
	var params marketAssetParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	history, err := s.node.MarketHistory(params.AssetID)
	if err != nil {
		return nil, err
	}
	return historyResult(history), nil
}

func (s *Server) handleMarketGetSales(c *call) (interface{}, error) {
	var params marketSalesParams
	if len(c.req.Params) > 0 {
		if err := c.decode(&params); err != nil {
			return nil, err
		}
	}
	if params.From == 0 {
		params.From = 1
	}
	if params.Limit == 0 || params.Limit > maxSalesPage {
		params.Limit = maxSalesPage
	}
	sales, err := s.node.MarketSales(params.From, params.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]SaleResult, 0, len(sales))
	for i := range sales {
		out = append(out, saleResult(&sales[i]))
	}
	return out, nil
}

func (s *Server) handleMarketGetTotals(*call) (interface{}, error) {
	totals, err := s.node.MarketTotals()
	if err != nil {
		return nil, err
	}
	return totalsResult(totals), nil
}
