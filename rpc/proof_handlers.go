package rpc

type proofSubmitParams struct {
	Caller    string `json:"caller"`
	AssetID   uint64 `json:"assetId"`
	Signature string `json:"signature"`
	DataHash  string `json:"dataHash"`
	Entropy   uint32 `json:"entropy,omitempty"`
}

type proofAssetParams struct {
	Caller  string `json:"caller,omitempty"`
	AssetID uint64 `json:"assetId"`
}

type proofVerifyParams struct {
	Caller    string `json:"caller"`
	AssetID   uint64 `json:"assetId"`
	RequestID string `json:"requestId"`
	Outcome   bool   `json:"outcome"`
}

type proofRequestParams struct {
	RequestID string `json:"requestId"`
}

func (s *Server) handleProofSubmit(c *call) (interface{}, error) {
	var params proofSubmitParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	signature, err := parseHexBytes("signature", params.Signature)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	var dataHash [32]byte
	if params.DataHash != "" {
		if dataHash, err = parseHash("dataHash", params.DataHash); err != nil {
			return nil, invalidParams("%v", err)
		}
	}
	record, err := s.node.ProofSubmit(c.ctx, caller, params.AssetID, signature, dataHash, params.Entropy)
	if err != nil {
		return nil, err
	}
	return proofResult(record), nil
}

func (s *Server) handleProofRequestVerification(c *call) (interface{}, error) {
	var params proofAssetParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	req, err := s.node.ProofRequestVerification(caller, params.AssetID)
	if err != nil {
		return nil, err
	}
	return requestResult(req), nil
}

func (s *Server) handleProofVerify(c *call) (interface{}, error) {
	var params proofVerifyParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	requestID, err := parseHash("requestId", params.RequestID)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	record, err := s.node.ProofVerify(caller, params.AssetID, requestID, params.Outcome)
	if err != nil {
		return nil, err
	}
	return proofResult(record), nil
}

func (s *Server) handleProofGet(c *call) (interface{}, error) {
	var params proofAssetParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	record, err := s.node.Proof(params.AssetID)
	if err != nil {
		return nil, err
	}
	return proofResult(record), nil
}

func (s *Server) handleProofGetRequest(c *call) (interface{}, error) {
	var params proofRequestParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	requestID, err := parseHash("requestId", params.RequestID)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	req, err := s.node.ProofRequest(requestID)
	if err != nil {
		return nil, err
	}
	return requestResult(req), nil
}
