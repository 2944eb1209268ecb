package i18n

var ptBRMessages = map[Code]string{
	CodeValidation:             "A requisição é inválida: {{.Reason}}",
	CodeNotOwner:               "Você não é dono deste gato.",
	CodeUnauthorized:           "Você não tem permissão para alterar esta oferta.",
	CodeAssetLocked:            "Este gato já tem uma oferta ativa.",
	CodeAlreadyLocked:          "Este gato está bloqueado por outra oferta.",
	CodeCooldownActive:         "Este gato foi negociado recentemente e só pode ser anunciado após {{.Until}}.",
	CodeOfferLimitExceeded:     "Você já tem {{.Limit}} ofertas ativas.",
	CodeWrongState:             "Esta oferta está {{.Status}} e não pode ser alterada.",
	CodeOfferNoLongerAvailable: "Esta oferta não está mais disponível.",
	CodeSettlementFailed:       "O pagamento não pôde ser concluído. A oferta continua aberta.",
	CodeInsufficientFunds:      "Você não tem {{.Currency}} suficiente para aceitar esta oferta.",
	CodeBuyerAssetLimit:        "Você já possui o número máximo de gatos.",
	CodeNotFound:               "O recurso {{.Resource}} não foi encontrado.",
	CodeInternal:               "Algo deu errado. Tente novamente.",
}
