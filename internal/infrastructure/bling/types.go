package bling

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a product as returned by the ERP API
type Product struct {
	ID         int64           `json:"id"`
	Name       string          `json:"nome"`
	SKU        string          `json:"codigo"`
	CategoryID string          `json:"categoria_id"`
	Price      decimal.Decimal `json:"preco"`
	Currency   string          `json:"moeda"`
	UpdatedAt  time.Time       `json:"atualizado_em"`
}

// ProductPage is one page of a product listing
type ProductPage struct {
	Products []Product `json:"data"`
	Page     int       `json:"pagina"`
	HasNext  bool      `json:"tem_proxima"`
}

// Order is a sales order as returned by the ERP API
type Order struct {
	ID        int64           `json:"id"`
	Number    string          `json:"numero"`
	Status    string          `json:"situacao"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"criado_em"`
	Items     []OrderItem     `json:"itens"`
}

// OrderItem is one line of an order
type OrderItem struct {
	ProductID int64           `json:"produto_id"`
	SKU       string          `json:"codigo"`
	Quantity  decimal.Decimal `json:"quantidade"`
	UnitPrice decimal.Decimal `json:"valor_unitario"`
}

// OrderPage is one page of an order listing
type OrderPage struct {
	Orders  []Order `json:"data"`
	Page    int     `json:"pagina"`
	HasNext bool    `json:"tem_proxima"`
}

// Stock is the stock balance for one product
type Stock struct {
	ProductID int64           `json:"produto_id"`
	Balance   decimal.Decimal `json:"saldo"`
	Reserved  decimal.Decimal `json:"reservado"`
}

// TokenResponse is the OAuth token endpoint response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
