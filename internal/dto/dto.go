package dto

import (
	"regdesk/internal/model"
	"regdesk/internal/service"
	"time"

	"github.com/shopspring/decimal"
)

type QuantityRequest struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type SetQuantitiesRequest struct {
	Items []QuantityRequest `json:"items"`
}

type VoucherRequest struct {
	Code string `json:"code"`
}

type ExtendRequest struct {
	Minutes int `json:"minutes"`
}

type CheckoutRequest struct {
	Nonce string `json:"nonce"`
}

type PaymentRequest struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

type ManualLineRequest struct {
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type ManualInvoiceRequest struct {
	UserID     string              `json:"user_id"`
	DueInHours int                 `json:"due_in_hours"`
	Lines      []ManualLineRequest `json:"lines"`
}

type ApplyCreditNoteRequest struct {
	InvoiceID uint `json:"invoice_id"`
}

type RefundRequest struct {
	Reference string `json:"reference"`
}

type CancellationFeeRequest struct {
	Percentage decimal.Decimal `json:"percentage"`
}

type CartItem struct {
	ProductID uint            `json:"product_id"`
	Product   string          `json:"product"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type CartDiscount struct {
	DiscountID  uint   `json:"discount_id"`
	Description string `json:"description"`
	ProductID   uint   `json:"product_id"`
	Quantity    int    `json:"quantity"`
}

type CartResponse struct {
	ID            uint           `json:"id"`
	Revision      int            `json:"revision"`
	ReservedUntil time.Time      `json:"reserved_until"`
	Items         []CartItem     `json:"items"`
	Discounts     []CartDiscount `json:"discounts"`
	Vouchers      []string       `json:"vouchers"`
}

func NewCartResponse(contents *service.CartContents) *CartResponse {
	resp := &CartResponse{
		ID:            contents.Cart.ID,
		Revision:      contents.Cart.Revision,
		ReservedUntil: contents.Cart.ReservedUntil,
		Items:         make([]CartItem, 0, len(contents.Items)),
		Discounts:     make([]CartDiscount, 0, len(contents.DiscountItems)),
		Vouchers:      make([]string, 0, len(contents.Cart.Vouchers)),
	}
	for _, item := range contents.Items {
		resp.Items = append(resp.Items, CartItem{
			ProductID: item.ProductID,
			Product:   item.Product.Label(),
			Quantity:  item.Quantity,
			Price:     item.Product.Price,
		})
	}
	for _, item := range contents.DiscountItems {
		resp.Discounts = append(resp.Discounts, CartDiscount{
			DiscountID:  item.DiscountID,
			Description: item.Discount.Description,
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
		})
	}
	for _, v := range contents.Cart.Vouchers {
		resp.Vouchers = append(resp.Vouchers, v.Code)
	}
	return resp
}

type LineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
}

type InvoiceResponse struct {
	ID        uint                `json:"id"`
	UserID    string              `json:"user_id"`
	CartID    *uint               `json:"cart_id,omitempty"`
	Status    model.InvoiceStatus `json:"status"`
	Recipient string              `json:"recipient"`
	IssueTime time.Time           `json:"issue_time"`
	DueTime   time.Time           `json:"due_time"`
	Value     decimal.Decimal     `json:"value"`
	Paid      decimal.Decimal     `json:"paid"`
	LineItems []LineItem          `json:"line_items"`
}

func NewInvoiceResponse(inv *model.Invoice, paid decimal.Decimal) *InvoiceResponse {
	resp := &InvoiceResponse{
		ID:        inv.ID,
		UserID:    inv.UserID,
		CartID:    inv.CartID,
		Status:    inv.Status,
		Recipient: inv.Recipient,
		IssueTime: inv.IssueTime,
		DueTime:   inv.DueTime,
		Value:     inv.Value,
		Paid:      paid,
		LineItems: make([]LineItem, 0, len(inv.LineItems)),
	}
	for i := range inv.LineItems {
		line := &inv.LineItems[i]
		resp.LineItems = append(resp.LineItems, LineItem{
			Description: line.Description,
			Quantity:    line.Quantity,
			Price:       line.Price,
			Total:       line.Total(),
		})
	}
	return resp
}

type CreditNoteResponse struct {
	ID        uint            `json:"id"`
	InvoiceID uint            `json:"invoice_id"`
	Value     decimal.Decimal `json:"value"`
	Status    string          `json:"status"`
}

func NewCreditNoteResponse(note *model.CreditNote) *CreditNoteResponse {
	return &CreditNoteResponse{
		ID:        note.ID,
		InvoiceID: note.InvoiceID,
		Value:     note.Value(),
		Status:    note.Status(),
	}
}

func NewCreditNoteResponses(notes []*model.CreditNote) []*CreditNoteResponse {
	out := make([]*CreditNoteResponse, len(notes))
	for i, note := range notes {
		out[i] = NewCreditNoteResponse(note)
	}
	return out
}

type ProductResponse struct {
	ID          uint            `json:"id"`
	CategoryID  uint            `json:"category_id"`
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

func NewProductResponses(products []*model.Product) []*ProductResponse {
	out := make([]*ProductResponse, len(products))
	for i, p := range products {
		out[i] = &ProductResponse{
			ID:          p.ID,
			CategoryID:  p.CategoryID,
			Name:        p.Name,
			Label:       p.Label(),
			Description: p.Description,
			Price:       p.Price,
		}
	}
	return out
}

type CategoryResponse struct {
	ID          uint             `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Required    bool             `json:"required"`
	RenderType  model.RenderType `json:"render_type"`
}

func NewCategoryResponses(categories []*model.Category) []*CategoryResponse {
	out := make([]*CategoryResponse, len(categories))
	for i, c := range categories {
		out[i] = &CategoryResponse{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Required:    c.Required,
			RenderType:  c.RenderType,
		}
	}
	return out
}

type ItemSummary struct {
	ProductID uint   `json:"product_id"`
	Product   string `json:"product"`
	Quantity  int    `json:"quantity"`
}

type ItemsResponse struct {
	Purchased []ItemSummary `json:"purchased"`
	Pending   []ItemSummary `json:"pending"`
	Released  []ItemSummary `json:"released"`
}

func NewItemsResponse(items *service.UserItems) *ItemsResponse {
	convert := func(in []*service.ItemSummary) []ItemSummary {
		out := make([]ItemSummary, len(in))
		for i, s := range in {
			out[i] = ItemSummary{ProductID: s.Product.ID, Product: s.Product.Label(), Quantity: s.Quantity}
		}
		return out
	}
	return &ItemsResponse{
		Purchased: convert(items.Purchased),
		Pending:   convert(items.Pending),
		Released:  convert(items.Released),
	}
}

type ErrorResponse struct {
	Message string               `json:"message"`
	Kind    service.ErrorKind    `json:"kind,omitempty"`
	Fields  []service.FieldError `json:"fields,omitempty"`
}
