package rpc

type bankDepositParams struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type bankBalanceParams struct {
	Account string `json:"account"`
}

type balanceResult struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type roleParams struct {
	Caller  string `json:"caller,omitempty"`
	Role    string `json:"role"`
	Account string `json:"account,omitempty"`
}

type pauseParams struct {
	Caller string `json:"caller"`
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handleBankDeposit(c *call) (interface{}, error) {
	var params bankDepositParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	account, err := accountParam("account", params.Account)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	balance, err := s.node.Deposit(caller, account, amount)
	if err != nil {
		return nil, err
	}
	return balanceResult{Account: formatAccount(account), Balance: formatAmount(balance)}, nil
}

func (s *Server) handleBankBalance(c *call) (interface{}, error) {
	var params bankBalanceParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	account, err := accountParam("account", params.Account)
	if err != nil {
		return nil, err
	}
	balance, err := s.node.Balance(account)
	if err != nil {
		return nil, err
	}
	return balanceResult{Account: formatAccount(account), Balance: formatAmount(balance)}, nil
}

func (s *Server) handleAdminGrantRole(c *call) (interface{}, error) {
	return s.changeRole(c, true)
}

func (s *Server) handleAdminRevokeRole(c *call) (interface{}, error) {
	return s.changeRole(c, false)
}

func (s *Server) changeRole(c *call, grant bool) (interface{}, error) {
	var params roleParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	account, err := accountParam("account", params.Account)
	if err != nil {
		return nil, err
	}
	if grant {
		err = s.node.GrantRole(caller, params.Role, account)
	} else {
		err = s.node.RevokeRole(caller, params.Role, account)
	}
	if err != nil {
		return nil, err
	}
	return s.roleMembers(params.Role)
}

func (s *Server) handleAdminRoleMembers(c *call) (interface{}, error) {
	var params roleParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	return s.roleMembers(params.Role)
}

func (s *Server) roleMembers(role string) (interface{}, error) {
	members, err := s.node.RoleMembers(role)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"role": role, "members": formatAccounts(members)}, nil
}

func (s *Server) handleAdminPauseModule(c *call) (interface{}, error) {
	var params pauseParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	caller, err := c.caller(params.Caller)
	if err != nil {
		return nil, err
	}
	if err := s.node.PauseModule(caller, params.Module, params.Paused); err != nil {
		return nil, err
	}
	return s.handleNodeStatus(c)
}

func (s *Server) handleNodeStatus(*call) (interface{}, error) {
	status, err := s.node.Status()
	if err != nil {
		return nil, err
	}
	return StatusResult{Height: status.Height, Root: status.Root.Hex(), Paused: status.Paused}, nil
}
