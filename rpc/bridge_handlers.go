package rpc

type bridgeInitiateParams struct {
	Caller    string `json:"caller"`
	AssetID   uint64 `json:"assetId"`
	Target    string `json:"target"`
	Recipient string `json:"recipient"`
	Proof     string `json:"proof"`
}

type bridgeCompleteParams struct {
	Caller string `json:"caller"`
	TxHash string `json:"txHash"`
	Proof  string `json:"proof"`
}

type bridgeWithdrawParams struct {
	Caller        string `json:"caller"`
	AssetID       uint64 `json:"assetId"`
	OriginalOwner string `json:"originalOwner"`
}

type bridgeTxParams struct {
	TxHash string `json:"txHash"`
}

func (s *Server) handleBridgeInitiate(c *call) (interface{}, error) {
	var params bridgeInitiateParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	recipient, err := accountParam("recipient", params.Recipient)
	if err != nil {
		return nil, err
	}
	proofBytes, err := parseHexBytes("proof", params.Proof)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	tx, err := s.node.BridgeInitiate(c.ctx, caller, params.AssetID, params.Target, recipient, proofBytes)
	if err != nil {
		return nil, err
	}
	return transactionResult(tx), nil
}

func (s *Server) handleBridgeComplete(c *call) (interface{}, error) {
	var params bridgeCompleteParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	txHash, err := parseHash("txHash", params.TxHash)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	proofBytes, err := parseHexBytes("proof", params.Proof)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	tx, err := s.node.BridgeComplete(c.ctx, caller, txHash, proofBytes)
	if err != nil {
		return nil, err
	}
	return transactionResult(tx), nil
}

func (s *Server) handleBridgeEmergencyWithdraw(c *call) (interface{}, error) {
	var params bridgeWithdrawParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	owner, err := accountParam("originalOwner", params.OriginalOwner)
	if err != nil {
		return nil, err
	}
	tx, err := s.node.BridgeEmergencyWithdraw(caller, params.AssetID, owner)
	if err != nil {
		return nil, err
	}
	return transactionResult(tx), nil
}

func (s *Server) handleBridgeGetTransaction(c *call) (interface{}, error) {
	var params bridgeTxParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	txHash, err := parseHash("txHash", params.TxHash)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	tx, err := s.node.BridgeTransaction(txHash)
	if err != nil {
		return nil, err
	}
	return transactionResult(tx), nil
}
