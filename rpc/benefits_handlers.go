package rpc

import "esimchain/native/benefits"

type benefitsCalculateParams struct {
	Theme       string `json:"theme"`
	Rarity      uint32 `json:"rarity"`
	BonusPoints uint64 `json:"bonusPoints,omitempty"`
}

type benefitsAssetParams struct {
	AssetID uint64 `json:"assetId"`
}

type benefitsPointsParams struct {
	Caller   string `json:"caller"`
	AssetID  uint64 `json:"assetId"`
	DataUsed uint64 `json:"dataUsed,omitempty"`
	Points   uint64 `json:"points,omitempty"`
}

type benefitsThemeParams struct {
	Caller  string                `json:"caller"`
	Theme   string                `json:"theme"`
	Benefit benefits.ThemeBenefit `json:"benefit"`
}

type pointsResult struct {
	AssetID uint64 `json:"assetId"`
	Balance uint64 `json:"balance"`
}

func (s *Server) handleBenefitsCalculate(c *call) (interface{}, error) {
	var params benefitsCalculateParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	return s.node.BenefitsCalculate(params.Theme, params.Rarity, params.BonusPoints)
}

func (s *Server) handleBenefitsGet(c *call) (interface{}, error) {
	var params benefitsAssetParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	return s.node.AssetBenefits(params.AssetID)
}

func (s *Server) handleBenefitsThemes(*call) (interface{}, error) {
	return s.node.ThemeTable()
}

func (s *Server) handleBenefitsEarn(c *call) (interface{}, error) {
	var params benefitsPointsParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	balance, err := s.node.BenefitsEarn(caller, params.AssetID, params.DataUsed)
	if err != nil {
		return nil, err
	}
	return pointsResult{AssetID: params.AssetID, Balance: balance}, nil
}

func (s *Server) handleBenefitsRedeem(c *call) (interface{}, error) {
	var params benefitsPointsParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	balance, err := s.node.BenefitsRedeem(caller, params.AssetID, params.Points)
	if err != nil {
		return nil, err
	}
	return pointsResult{AssetID: params.AssetID, Balance: balance}, nil
}

func (s *Server) handleBenefitsUpdateTheme(c *call) (interface{}, error) {
	var params benefitsThemeParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	if err := s.node.BenefitsUpdateTheme(caller, params.Theme, params.Benefit); err != nil {
		return nil, err
	}
	return s.node.ThemeTable()
}
