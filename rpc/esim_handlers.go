package rpc

import (
	"time"

	"esimchain/native/esim"
)

type esimMintParams struct {
	Caller          string `json:"caller"`
	Owner           string `json:"owner"`
	Bandwidth       uint64 `json:"bandwidth"`
	Signature       string `json:"signature"`
	Theme           string `json:"theme,omitempty"`
	Rarity          uint32 `json:"rarity,omitempty"`
	ValiditySeconds int64  `json:"validitySeconds"`
}

type esimAssetParams struct {
	Caller  string `json:"caller,omitempty"`
	AssetID uint64 `json:"assetId"`
}

type esimBandwidthParams struct {
	Caller    string `json:"caller"`
	AssetID   uint64 `json:"assetId"`
	Bandwidth uint64 `json:"bandwidth"`
}

type esimOwnerParams struct {
	Owner string `json:"owner"`
}

func (s *Server) handleEsimMint(c *call) (interface{}, error) {
	var params esimMintParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	owner, err := accountParam("owner", params.Owner)
	if err != nil {
		return nil, err
	}
	signature, err := parseHexBytes("signature", params.Signature)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	validity, err := validityPeriod(params.ValiditySeconds)
	if err != nil {
		return nil, err
	}
	token, err := s.node.EsimMint(caller, esim.MintParams{
		Owner:          owner,
		Bandwidth:      params.Bandwidth,
		Signature:      signature,
		Theme:          params.Theme,
		Rarity:         params.Rarity,
		ValidityPeriod: validity,
	})
	if err != nil {
		return nil, err
	}
	return tokenResult(token), nil
}

// validityPeriod converts seconds to a duration, rejecting values outside the
// accepted window before the multiplication can overflow.
func validityPeriod(seconds int64) (time.Duration, error) {
	if seconds <= 0 || seconds > int64(esim.MaxValidityPeriod/time.Second) {
		return 0, esim.ErrInvalidValidityPeriod
	}
	return time.Duration(seconds) * time.Second, nil
}

func (s *Server) handleEsimUpdateBandwidth(c *call) (interface{}, error) {
	var params esimBandwidthParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	token, err := s.node.EsimUpdateBandwidth(caller, params.AssetID, params.Bandwidth)
	if err != nil {
		return nil, err
	}
	return tokenResult(token), nil
}

func (s *Server) handleEsimSuspend(c *call) (interface{}, error) {
	return s.esimStatusChange(c, s.node.EsimSuspend)
}

func (s *Server) handleEsimReactivate(c *call) (interface{}, error) {
	return s.esimStatusChange(c, s.node.EsimReactivate)
}

func (s *Server) esimStatusChange(c *call, apply func([20]byte, uint64) (*esim.Token, error)) (interface{}, error) {
	var params esimAssetParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	token, err := apply(caller, params.AssetID)
	if err != nil {
		return nil, err
	}
	return tokenResult(token), nil
}

func (s *Server) handleEsimExpire(c *call) (interface{}, error) {
	var params esimAssetParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	token, err := s.node.EsimExpire(params.AssetID)
	if err != nil {
		return nil, err
	}
	return tokenResult(token), nil
}

func (s *Server) handleEsimGetToken(c *call) (interface{}, error) {
	var params esimAssetParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	token, err := s.node.EsimToken(params.AssetID)
	if err != nil {
		return nil, err
	}
	return tokenResult(token), nil
}

func (s *Server) handleEsimGetDetails(c *call) (interface{}, error) {
	var params esimAssetParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	details, err := s.node.EsimDetails(params.AssetID)
	if err != nil {
		return nil, err
	}
	return detailsResult(details), nil
}

func (s *Server) handleEsimGetOwnerAssets(c *call) (interface{}, error) {
	var params esimOwnerParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	owner, err := accountParam("owner", params.Owner)
	if err != nil {
		return nil, err
	}
	ids, err := s.node.OwnerAssets(owner)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}
