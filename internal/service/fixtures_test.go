package service

import (
	"time"

	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/repo/repotest"
	"github.com/shopspring/decimal"
)

var (
	customer = model.Actor{UserID: "user-1", Role: model.RoleCustomer}
	stranger = model.Actor{UserID: "user-2", Role: model.RoleCustomer}
	admin    = model.Actor{UserID: "admin-1", Role: model.RoleAdmin}
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedProducts(store *repotest.Store) {
	store.Products["ebook"] = &model.Product{
		ID:       "ebook",
		SellerID: "seller-1",
		Name:     "Go in Practice",
		Price:    decimal.RequireFromString("19.99"),
		Currency: "USD",
		Digital:  true,
		FileURL:  "https://files.example.com/ebook.pdf",
		Active:   true,
	}
	store.Products["mug"] = &model.Product{
		ID:       "mug",
		SellerID: "seller-2",
		Name:     "Gopher Mug",
		Price:    decimal.RequireFromString("12.50"),
		Currency: "USD",
		Stock:    3,
		Active:   true,
	}
	store.Products["retired"] = &model.Product{
		ID:       "retired",
		SellerID: "seller-2",
		Name:     "Old Poster",
		Price:    decimal.RequireFromString("5"),
		Currency: "USD",
		Stock:    10,
		Active:   false,
	}
}

func seedOrder(store *repotest.Store, id, userID, productID string, status model.OrderStatus) *model.Order {
	p := store.Products[productID]
	o := &model.Order{
		ID:            id,
		UserID:        userID,
		ProductID:     productID,
		SellerID:      p.SellerID,
		Quantity:      1,
		UnitPrice:     p.Price,
		Amount:        p.Price,
		Currency:      p.Currency,
		Status:        status,
		PaymentStatus: model.PaymentStatusUnpaid,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if status == model.OrderStatusCompleted {
		o.PaymentStatus = model.PaymentStatusPaid
		o.TransactionID = "ch_seed"
	}
	store.Orders[id] = o
	return o
}
