package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regdesk/internal/batch"
	"regdesk/internal/clock"
	"regdesk/internal/conditions"
	"regdesk/internal/model"
	"regdesk/internal/repository"
	"sort"
	"time"

	"gorm.io/gorm"
)

type QuantityChange struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type CartContents struct {
	Cart          *model.Cart
	Items         []*model.ProductItem
	DiscountItems []*model.DiscountItem
}

type CartService interface {
	ForUser(ctx context.Context, userID string) (*model.Cart, error)
	Contents(ctx context.Context, userID string) (*CartContents, error)
	AddToCart(ctx context.Context, userID string, productID uint, quantity int) error
	SetQuantity(ctx context.Context, userID string, productID uint, quantity int) error
	SetQuantities(ctx context.Context, userID string, changes []QuantityChange) error
	ApplyVoucher(ctx context.Context, userID, code string) error
	ValidateCart(ctx context.Context, cartID uint) error
	FixSimpleErrors(ctx context.Context, userID string) error
	ExtendReservation(ctx context.Context, userID string, d time.Duration) error
	// Batch runs several cart operations as one. Discounts are recalculated
	// and the revision bumped once, when the outermost batch succeeds.
	Batch(ctx context.Context, userID string, fn func(ctx context.Context) error) error
}

type cartServiceImpl struct {
	tx      repository.Transactor
	carts   repository.CartRepository
	catalog repository.CatalogRepository
	engine  *conditions.Engine
	clock   clock.Clock
}

func NewCartService(
	tx repository.Transactor,
	carts repository.CartRepository,
	catalog repository.CatalogRepository,
	engine *conditions.Engine,
	clk clock.Clock,
) CartService {
	return &cartServiceImpl{
		tx:      tx,
		carts:   carts,
		catalog: catalog,
		engine:  engine,
		clock:   clk,
	}
}

// cartController tracks one user's active cart for the length of a batch.
type cartController struct {
	svc      *cartServiceImpl
	cartID   uint
	cart     *model.Cart
	modified bool
}

func (c *cartController) refresh(ctx context.Context) error {
	cart, err := c.svc.carts.FindByID(ctx, c.cartID)
	if err != nil {
		return fmt.Errorf("refresh cart: %w", err)
	}
	if cart.Status != model.CartActive {
		return ErrCartNotActive
	}
	c.cart = cart
	return nil
}

func (c *cartController) EndBatch(ctx context.Context) error {
	if !c.modified {
		return nil
	}
	c.modified = false
	return c.svc.tx.InTx(ctx, func(ctx context.Context) error {
		return c.svc.commit(ctx, c.cartID)
	})
}

func (s *cartServiceImpl) controller(ctx context.Context, userID string) (*cartController, error) {
	return batch.Memoise(ctx, batch.NewKey("cart.for_user", userID), func(ctx context.Context) (*cartController, error) {
		cart, err := s.forUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &cartController{svc: s, cartID: cart.ID, cart: cart}, nil
	})
}

// modify runs fn against the user's active cart inside a transaction and a
// batch. Unless fn reports errNoChange the cart is committed when the
// outermost batch ends.
func (s *cartServiceImpl) modify(ctx context.Context, userID string, fn func(ctx context.Context, c *cartController) error) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return batch.Do(ctx, userID, func(ctx context.Context) error {
			c, err := s.controller(ctx, userID)
			if err != nil {
				return err
			}
			if err := c.refresh(ctx); err != nil {
				return err
			}

			err = fn(ctx, c)
			if errors.Is(err, errNoChange) {
				return nil
			}
			if err != nil {
				return err
			}
			c.modified = true
			return nil
		})
	})
}

func (s *cartServiceImpl) Batch(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return batch.Do(ctx, userID, fn)
	})
}

func (s *cartServiceImpl) ForUser(ctx context.Context, userID string) (*model.Cart, error) {
	var cart *model.Cart
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		cart, err = s.forUser(ctx, userID)
		return err
	})
	return cart, err
}

func (s *cartServiceImpl) forUser(ctx context.Context, userID string) (*model.Cart, error) {
	cart, err := s.carts.ActiveForUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find active cart: %w", err)
	}

	cart = &model.Cart{
		UserID:   userID,
		Status:   model.CartActive,
		Revision: 1,
	}
	cart.Touch(s.clock.Now(), 0)
	if err := s.carts.Create(ctx, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	log.Printf("[cart] created cart %d for user %s", cart.ID, userID)
	return cart, nil
}

func (s *cartServiceImpl) Contents(ctx context.Context, userID string) (*CartContents, error) {
	cart, err := s.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.carts.Items(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	discounts, err := s.carts.DiscountItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("load discount items: %w", err)
	}

	return &CartContents{
		Cart:          cart,
		Items:         items,
		DiscountItems: discounts,
	}, nil
}

func (s *cartServiceImpl) SetQuantity(ctx context.Context, userID string, productID uint, quantity int) error {
	return s.SetQuantities(ctx, userID, []QuantityChange{{ProductID: productID, Quantity: quantity}})
}

func (s *cartServiceImpl) SetQuantities(ctx context.Context, userID string, changes []QuantityChange) error {
	return s.modify(ctx, userID, func(ctx context.Context, c *cartController) error {
		return s.setQuantities(ctx, c.cart, changes)
	})
}

func (s *cartServiceImpl) AddToCart(ctx context.Context, userID string, productID uint, quantity int) error {
	return s.modify(ctx, userID, func(ctx context.Context, c *cartController) error {
		items, err := s.carts.Items(ctx, c.cart.ID)
		if err != nil {
			return fmt.Errorf("load cart items: %w", err)
		}
		held := 0
		for _, item := range items {
			if item.ProductID == productID {
				held = item.Quantity
			}
		}
		return s.setQuantities(ctx, c.cart, []QuantityChange{{ProductID: productID, Quantity: held + quantity}})
	})
}

// setQuantities checks the cart as it would be after changes and writes
// the changed rows.
func (s *cartServiceImpl) setQuantities(ctx context.Context, cart *model.Cart, changes []QuantityChange) error {
	if len(changes) == 0 {
		return errNoChange
	}

	ids := make([]uint, len(changes))
	for i, ch := range changes {
		ids[i] = ch.ProductID
	}
	products, err := s.catalog.FindProducts(ctx, ids)
	if err != nil {
		return fmt.Errorf("find products: %w", err)
	}
	byID := make(map[uint]*model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if byID[id] == nil {
			return fmt.Errorf("product %d: %w", id, gorm.ErrRecordNotFound)
		}
	}

	items, err := s.carts.Items(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("load cart items: %w", err)
	}

	resulting := make(map[uint]int, len(items)+len(changes))
	for _, item := range items {
		resulting[item.ProductID] = item.Quantity
		byID[item.ProductID] = &item.Product
	}
	changed := make(map[uint]int, len(changes))
	for _, ch := range changes {
		resulting[ch.ProductID] = ch.Quantity
		changed[ch.ProductID] = ch.Quantity
	}

	if err := s.checkLimits(ctx, cart.UserID, KindCapacity, quantitiesOf(byID, resulting)); err != nil {
		return err
	}

	return s.carts.SetItems(ctx, cart.ID, changed)
}

func quantitiesOf(products map[uint]*model.Product, quantities map[uint]int) []conditions.ProductQuantity {
	ordered := make([]*model.Product, 0, len(quantities))
	for id := range quantities {
		ordered = append(ordered, products[id])
	}
	model.SortProducts(ordered)

	out := make([]conditions.ProductQuantity, len(ordered))
	for i, p := range ordered {
		out[i] = conditions.ProductQuantity{Product: p, Quantity: quantities[p.ID]}
	}
	return out
}

func itemQuantities(items []*model.ProductItem) []conditions.ProductQuantity {
	out := make([]conditions.ProductQuantity, len(items))
	for i, item := range items {
		out[i] = conditions.ProductQuantity{Product: &item.Product, Quantity: item.Quantity}
	}
	return out
}

func (s *cartServiceImpl) checkLimits(ctx context.Context, userID string, kind ErrorKind, quantities []conditions.ProductQuantity) error {
	fields, err := s.limitErrors(ctx, userID, quantities)
	if err != nil {
		return err
	}
	ve := &ValidationError{Kind: kind, Fields: fields}
	return ve.errOrNil()
}

// limitErrors applies per-user product and category limits, then flags,
// to the quantities the user would hold.
func (s *cartServiceImpl) limitErrors(ctx context.Context, userID string, quantities []conditions.ProductQuantity) ([]FieldError, error) {
	var fields []FieldError

	categoryTotals := make(map[uint]int)
	categories := make(map[uint]*model.Category)
	for _, pq := range quantities {
		p := pq.Product
		if pq.Quantity < 0 {
			fields = append(fields, FieldError{ProductID: p.ID, Message: "Value must be zero or greater."})
			continue
		}

		left, err := s.engine.ProductRemainder(ctx, userID, p)
		if err != nil {
			return nil, err
		}
		if pq.Quantity > left {
			fields = append(fields, FieldError{
				ProductID: p.ID,
				Message:   fmt.Sprintf("You may only have %d of product: %s", left, p.Label()),
			})
		}

		categoryTotals[p.CategoryID] += pq.Quantity
		categories[p.CategoryID] = &p.Category
	}

	categoryIDs := make([]uint, 0, len(categories))
	for id := range categories {
		categoryIDs = append(categoryIDs, id)
	}
	sort.Slice(categoryIDs, func(i, j int) bool { return categoryIDs[i] < categoryIDs[j] })

	for _, id := range categoryIDs {
		c := categories[id]
		left, err := s.engine.CategoryRemainder(ctx, userID, c)
		if err != nil {
			return nil, err
		}
		if categoryTotals[id] > left {
			fields = append(fields, FieldError{
				CategoryID: id,
				Message:    fmt.Sprintf("You may only have %d items in category: %s", left, c.Name),
			})
		}
	}

	flagErrs, err := s.engine.TestFlags(ctx, userID, quantities)
	if err != nil {
		return nil, err
	}
	for _, fe := range flagErrs {
		fields = append(fields, FieldError{ProductID: fe.Product.ID, Message: fe.Message})
	}

	return fields, nil
}

func (s *cartServiceImpl) ApplyVoucher(ctx context.Context, userID, code string) error {
	return s.modify(ctx, userID, func(ctx context.Context, c *cartController) error {
		voucher, err := s.catalog.FindVoucherByCode(ctx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			normalised := model.NormaliseCode(code)
			return &ValidationError{Kind: KindCapacity, Fields: []FieldError{{
				VoucherCode: normalised,
				Message:     fmt.Sprintf("Voucher %s does not exist", normalised),
			}}}
		}
		if err != nil {
			return fmt.Errorf("find voucher: %w", err)
		}

		for _, held := range c.cart.Vouchers {
			if held.ID == voucher.ID {
				return errNoChange
			}
		}

		fields, err := s.voucherErrors(ctx, c.cart, voucher)
		if err != nil {
			return err
		}
		if len(fields) > 0 {
			return &ValidationError{Kind: KindCapacity, Fields: fields}
		}

		return s.carts.AddVoucher(ctx, c.cart, voucher)
	})
}

func (s *cartServiceImpl) voucherErrors(ctx context.Context, cart *model.Cart, voucher *model.Voucher) ([]FieldError, error) {
	now := s.clock.Now()

	elsewhere, err := s.carts.CountReservedWithVoucher(ctx, voucher.ID, now, cart.ID, "")
	if err != nil {
		return nil, fmt.Errorf("count voucher uses: %w", err)
	}
	if elsewhere >= int64(voucher.Limit) {
		return []FieldError{{
			VoucherCode: voucher.Code,
			Message:     fmt.Sprintf("Voucher %s is no longer available", voucher.Code),
		}}, nil
	}

	mine, err := s.carts.CountReservedWithVoucher(ctx, voucher.ID, now, cart.ID, cart.UserID)
	if err != nil {
		return nil, fmt.Errorf("count voucher uses: %w", err)
	}
	if mine > 0 {
		return []FieldError{{
			VoucherCode: voucher.Code,
			Message:     "You have already entered this voucher.",
		}}, nil
	}
	return nil, nil
}

func (s *cartServiceImpl) ValidateCart(ctx context.Context, cartID uint) error {
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return fmt.Errorf("find cart: %w", err)
	}
	return batch.Do(ctx, cart.UserID, func(ctx context.Context) error {
		return s.validate(ctx, cart)
	})
}

// validate checks that everything the cart holds could still be taken.
// Stock held by the cart itself does not count against it.
func (s *cartServiceImpl) validate(ctx context.Context, cart *model.Cart) error {
	ve := &ValidationError{Kind: KindStaleCart}

	for i := range cart.Vouchers {
		fields, err := s.voucherErrors(ctx, cart, &cart.Vouchers[i])
		if err != nil {
			return err
		}
		ve.Fields = append(ve.Fields, fields...)
	}

	items, err := s.carts.Items(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("load cart items: %w", err)
	}
	fields, err := s.limitErrors(ctx, cart.UserID, itemQuantities(items))
	if err != nil {
		return err
	}
	ve.Fields = append(ve.Fields, fields...)

	required, err := s.catalog.RequiredCategories(ctx)
	if err != nil {
		return fmt.Errorf("load required categories: %w", err)
	}
	for _, c := range required {
		held, err := s.carts.HoldsCategory(ctx, cart.UserID, c.ID, model.HeldStatuses)
		if err != nil {
			return fmt.Errorf("check required category: %w", err)
		}
		if !held {
			ve.add(FieldError{
				CategoryID: c.ID,
				Message:    fmt.Sprintf("You must have at least one item from: %s", c.Name),
			})
		}
	}

	discountItems, err := s.carts.DiscountItems(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("load discount items: %w", err)
	}
	seen := make(map[uint]bool)
	for _, item := range discountItems {
		if seen[item.DiscountID] {
			continue
		}
		seen[item.DiscountID] = true

		met, err := s.engine.IsMet(ctx, cart.UserID, item.Discount.Spec())
		if err != nil {
			return err
		}
		if !met {
			ve.add(FieldError{DiscountID: item.DiscountID, Message: "Discounts are no longer available"})
		}
	}

	return ve.errOrNil()
}

func (s *cartServiceImpl) FixSimpleErrors(ctx context.Context, userID string) error {
	return s.modify(ctx, userID, func(ctx context.Context, c *cartController) error {
		// vouchers first, they change which discounts are available
		vouchers := append([]model.Voucher(nil), c.cart.Vouchers...)
		for i := range vouchers {
			voucher := &vouchers[i]
			fields, err := s.voucherErrors(ctx, c.cart, voucher)
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				continue
			}
			if err := s.carts.RemoveVoucher(ctx, c.cart, voucher); err != nil {
				return fmt.Errorf("remove voucher: %w", err)
			}
			log.Printf("[cart] removed voucher %s from cart %d", voucher.Code, c.cart.ID)
		}

		items, err := s.carts.Items(ctx, c.cart.ID)
		if err != nil {
			return fmt.Errorf("load cart items: %w", err)
		}
		products := make([]*model.Product, len(items))
		for i, item := range items {
			products[i] = &item.Product
		}
		available, err := s.engine.AvailableProducts(ctx, userID, products)
		if err != nil {
			return err
		}
		ok := make(map[uint]bool, len(available))
		for _, p := range available {
			ok[p.ID] = true
		}

		zeros := make(map[uint]int)
		for _, p := range products {
			if !ok[p.ID] {
				zeros[p.ID] = 0
			}
		}
		// discounts are rebuilt on commit either way
		return s.carts.SetItems(ctx, c.cart.ID, zeros)
	})
}

func (s *cartServiceImpl) ExtendReservation(ctx context.Context, userID string, d time.Duration) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		cart, err := s.forUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.ValidateCart(ctx, cart.ID); err != nil {
			return err
		}

		now := s.clock.Now()
		if cart.ReservationLeft(now) > d {
			return nil
		}
		cart.Touch(now, d)
		return s.carts.Save(ctx, cart)
	})
}

// commit rebuilds the discounts of a changed cart, extends its
// reservation and bumps its revision.
func (s *cartServiceImpl) commit(ctx context.Context, cartID uint) error {
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return fmt.Errorf("find cart: %w", err)
	}
	if cart.Status != model.CartActive {
		return ErrCartNotActive
	}

	items, err := s.carts.Items(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("load cart items: %w", err)
	}
	if err := s.recalculateDiscounts(ctx, cart, items); err != nil {
		return fmt.Errorf("recalculate discounts: %w", err)
	}

	now := s.clock.Now()
	reservation := cart.ReservationLeft(now)
	if len(cart.Vouchers) > 0 {
		reservation = max(reservation, model.VoucherReservation)
	}
	for _, item := range items {
		reservation = max(reservation, item.Product.ReservationDuration)
	}
	cart.Touch(now, reservation)
	cart.Revision++

	if err := s.carts.Save(ctx, cart); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *cartServiceImpl) recalculateDiscounts(ctx context.Context, cart *model.Cart, items []*model.ProductItem) error {
	products := make([]*model.Product, len(items))
	for i, item := range items {
		products[i] = &item.Product
	}

	var allocated []*model.DiscountItem
	if len(products) > 0 {
		available, err := s.engine.AvailableDiscounts(ctx, cart.UserID, nil, products)
		if err != nil {
			return err
		}
		allocated = conditions.Allocate(cart.ID, items, available)
	}

	return s.carts.ReplaceDiscountItems(ctx, cart.ID, allocated)
}
