package rpc

import (
	"time"

	"esimchain/native/bandwidth"
)

type bandwidthAllocateParams struct {
	Caller          string `json:"caller"`
	AssetID         uint64 `json:"assetId"`
	Amount          uint64 `json:"amount"`
	DurationSeconds int64  `json:"durationSeconds"`
	ProofID         string `json:"proofId"`
}

type bandwidthConsumeParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	Amount  uint64 `json:"amount"`
	ProofID string `json:"proofId"`
}

type bandwidthToggleParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	ProofID string `json:"proofId"`
}

type bandwidthUsageParams struct {
	AssetID uint64 `json:"assetId"`
}

func (s *Server) handleBandwidthAllocate(c *call) (interface{}, error) {
	var params bandwidthAllocateParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	proofID, err := parseHash("proofId", params.ProofID)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	duration := time.Duration(params.DurationSeconds) * time.Second
	alloc, err := s.node.BandwidthAllocate(caller, params.AssetID, params.Amount, duration, proofID)
	if err != nil {
		return nil, err
	}
	return allocationResult(alloc), nil
}

func (s *Server) handleBandwidthConsume(c *call) (interface{}, error) {
	var params bandwidthConsumeParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	proofID, err := parseHash("proofId", params.ProofID)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	usage, err := s.node.BandwidthConsume(caller, params.AssetID, params.Amount, proofID)
	if err != nil {
		return nil, err
	}
	return usageResult(usage), nil
}

func (s *Server) handleBandwidthActivate(c *call) (interface{}, error) {
	return s.bandwidthToggle(c, s.node.BandwidthActivate)
}

func (s *Server) handleBandwidthDeactivate(c *call) (interface{}, error) {
	return s.bandwidthToggle(c, s.node.BandwidthDeactivate)
}

func (s *Server) bandwidthToggle(c *call, apply func([20]byte, uint64, [32]byte) (*bandwidth.Allocation, error)) (interface{}, error) {
	var params bandwidthToggleParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	proofID, err := parseHash("proofId", params.ProofID)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	alloc, err := apply(caller, params.AssetID, proofID)
	if err != nil {
		return nil, err
	}
	return allocationResult(alloc), nil
}

func (s *Server) handleBandwidthGetUsage(c *call) (interface{}, error) {
	var params bandwidthUsageParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	usage, err := s.node.BandwidthUsage(params.AssetID)
	if err != nil {
		return nil, err
	}
	return usageResult(usage), nil
}
