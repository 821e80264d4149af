package accounting

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/domain/catalog"
	"github.com/retailhub/backend/internal/domain/partner"
	"github.com/retailhub/backend/internal/domain/shared"
	"github.com/retailhub/backend/internal/domain/trade"
	"github.com/retailhub/backend/internal/infrastructure/cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type syncFixture struct {
	products  *MockProductReader
	customers *MockCustomerReader
	sales     *MockSaleReader
	gateway   *MockGateway
	mappings  *memMappingRepository
	logs      *memSyncLogRepository
	service   *SyncService
}

func newSyncFixture(t *testing.T, tokens accounting.AccessTokenProvider, cfg SyncConfig) *syncFixture {
	t.Helper()
	f := &syncFixture{
		products:  new(MockProductReader),
		customers: new(MockCustomerReader),
		sales:     new(MockSaleReader),
		gateway:   new(MockGateway),
		mappings:  newMemMappingRepository(),
		logs:      &memSyncLogRepository{},
	}
	f.service = NewSyncService(SyncServiceDeps{
		Products:  f.products,
		Customers: f.customers,
		Sales:     f.sales,
		Mapper:    NewEntityMapper(f.mappings, cache.NewInMemoryEntityLocker()),
		Tokens:    tokens,
		Gateway:   f.gateway,
		Logs:      f.logs,
	}, cfg)
	return f
}

func connectedFixture(t *testing.T) *syncFixture {
	return newSyncFixture(t, staticTokens{}, SyncConfig{
		IncomeAccountRef:  "79",
		AssetAccountRef:   "81",
		ExpenseAccountRef: "80",
	})
}

func testProduct(name string) *catalog.Product {
	return &catalog.Product{
		ID:            uuid.New(),
		Name:          name,
		SKU:           "SKU-" + name,
		Description:   name + " description",
		UnitPrice:     decimal.NewFromFloat(9.99),
		CostPrice:     decimal.NewFromFloat(4.5),
		StockQuantity: decimal.NewFromInt(12),
		IsActive:      true,
		CreatedAt:     time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
	}
}

func testCustomer() *partner.Customer {
	return &partner.Customer{
		ID:         uuid.New(),
		Name:       "Jane Doe",
		Email:      "jane@example.com",
		Phone:      "555-0100",
		Address:    "1 Main St",
		City:       "Springfield",
		Province:   "IL",
		PostalCode: "62701",
		Country:    "US",
	}
}

func TestSyncProduct(t *testing.T) {
	t.Run("creates the item once and short-circuits afterwards", func(t *testing.T) {
		f := connectedFixture(t)
		product := testProduct("Widget")
		f.products.On("FindByID", mock.Anything, product.ID).Return(product, nil).Once()
		f.gateway.On("CreateItem", mock.Anything, mock.AnythingOfType("*accounting.RemoteItem")).
			Return(&accounting.RemoteItem{ID: "item-1", SyncToken: "0"}, nil).Once()

		first := f.service.SyncProduct(context.Background(), product.ID)
		require.True(t, first.Success, first.Error)
		assert.Equal(t, "item-1", first.RemoteID)
		assert.False(t, first.AlreadySynced)

		second := f.service.SyncProduct(context.Background(), product.ID)
		require.True(t, second.Success)
		assert.Equal(t, "item-1", second.RemoteID)
		assert.True(t, second.AlreadySynced)

		f.gateway.AssertNumberOfCalls(t, "CreateItem", 1)
		assert.Equal(t, 1, f.mappings.count(accounting.EntityKindProduct))

		entries := f.logs.all()
		require.Len(t, entries, 1)
		assert.Equal(t, accounting.SyncLogStatusSuccess, entries[0].Status)
		assert.Equal(t, accounting.EntityKindProduct, entries[0].EntityType)
		assert.Equal(t, 1, entries[0].RecordsProcessed)
	})

	t.Run("builds the item from product and configured accounts", func(t *testing.T) {
		f := newSyncFixture(t, staticTokens{}, SyncConfig{
			ItemType:          accounting.ItemTypeInventory,
			IncomeAccountRef:  "79",
			AssetAccountRef:   "81",
			ExpenseAccountRef: "80",
		})
		product := testProduct("Gadget")
		f.products.On("FindByID", mock.Anything, product.ID).Return(product, nil)

		var sent *accounting.RemoteItem
		f.gateway.On("CreateItem", mock.Anything, mock.AnythingOfType("*accounting.RemoteItem")).
			Run(func(args mock.Arguments) { sent = args.Get(1).(*accounting.RemoteItem) }).
			Return(&accounting.RemoteItem{ID: "item-2"}, nil)

		res := f.service.SyncProduct(context.Background(), product.ID)
		require.True(t, res.Success, res.Error)
		require.NotNil(t, sent)
		assert.Equal(t, "Gadget", sent.Name)
		assert.Equal(t, "SKU-Gadget", sent.SKU)
		assert.Equal(t, accounting.ItemTypeInventory, sent.Type)
		assert.True(t, sent.UnitPrice.Equal(decimal.NewFromFloat(9.99)))
		assert.True(t, sent.PurchaseCost.Equal(decimal.NewFromFloat(4.5)))
		assert.True(t, sent.TrackQtyOnHand)
		assert.True(t, sent.QtyOnHand.Equal(decimal.NewFromInt(12)))
		require.NotNil(t, sent.InventoryStartAt)
		assert.Equal(t, "79", sent.IncomeAccountRef)
		assert.Equal(t, "81", sent.AssetAccountRef)
		assert.Equal(t, "80", sent.ExpenseAccountRef)
	})

	t.Run("defaults to non-inventory items", func(t *testing.T) {
		f := newSyncFixture(t, staticTokens{}, SyncConfig{IncomeAccountRef: "79"})
		product := testProduct("Plain")
		f.products.On("FindByID", mock.Anything, product.ID).Return(product, nil)
		f.gateway.On("CreateItem", mock.Anything, mock.MatchedBy(func(item *accounting.RemoteItem) bool {
			return item.Type == accounting.ItemTypeNonInventory && !item.TrackQtyOnHand && item.InventoryStartAt == nil
		})).Return(&accounting.RemoteItem{ID: "item-3"}, nil)

		res := f.service.SyncProduct(context.Background(), product.ID)
		assert.True(t, res.Success, res.Error)
	})

	t.Run("not connected returns failure without a log entry", func(t *testing.T) {
		f := newSyncFixture(t, staticTokens{err: accounting.ErrNotConnected}, SyncConfig{})

		res := f.service.SyncProduct(context.Background(), uuid.New())
		assert.False(t, res.Success)
		assert.True(t, res.NotConnected())
		assert.Contains(t, res.Error, "not connected")
		assert.Empty(t, f.logs.all())
		f.gateway.AssertNotCalled(t, "CreateItem", mock.Anything, mock.Anything)
		f.products.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("failed refresh is treated as not connected", func(t *testing.T) {
		refreshErr := errors.Join(accounting.ErrTokenRefreshFailed, errors.New("invalid_grant"))
		f := newSyncFixture(t, staticTokens{err: refreshErr}, SyncConfig{})

		res := f.service.SyncProduct(context.Background(), uuid.New())
		assert.True(t, res.NotConnected())
		assert.Empty(t, f.logs.all())
	})

	t.Run("missing product is logged as an error", func(t *testing.T) {
		f := connectedFixture(t)
		id := uuid.New()
		f.products.On("FindByID", mock.Anything, id).Return(nil, shared.ErrNotFound)

		res := f.service.SyncProduct(context.Background(), id)
		assert.False(t, res.Success)
		assert.False(t, res.NotConnected())
		assert.Contains(t, res.Error, "local entity not found")

		entries := f.logs.all()
		require.Len(t, entries, 1)
		assert.Equal(t, accounting.SyncLogStatusError, entries[0].Status)
		assert.Equal(t, 0, entries[0].RecordsProcessed)
		assert.Contains(t, entries[0].ErrorMessage, id.String())
		f.gateway.AssertNotCalled(t, "CreateItem", mock.Anything, mock.Anything)
	})

	t.Run("remote error is logged and no mapping is stored", func(t *testing.T) {
		f := connectedFixture(t)
		product := testProduct("Broken")
		f.products.On("FindByID", mock.Anything, product.ID).Return(product, nil)
		f.gateway.On("CreateItem", mock.Anything, mock.Anything).Return(nil, &accounting.RemoteAPIError{
			StatusCode: 400,
			Status:     "400 Bad Request",
			Endpoint:   "/item",
			Message:    "Duplicate Name Exists Error",
		})

		res := f.service.SyncProduct(context.Background(), product.ID)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "Duplicate Name Exists Error")
		assert.Equal(t, 0, f.mappings.count(accounting.EntityKindProduct))

		entries := f.logs.all()
		require.Len(t, entries, 1)
		assert.Equal(t, accounting.SyncLogStatusError, entries[0].Status)
		assert.Contains(t, entries[0].ErrorMessage, "Duplicate Name Exists Error")
	})
}

func TestSyncProduct_ConcurrentCallsCreateOnce(t *testing.T) {
	f := connectedFixture(t)
	product := testProduct("Racy")
	f.products.On("FindByID", mock.Anything, product.ID).Return(product, nil)

	var creates atomic.Int32
	f.gateway.On("CreateItem", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			creates.Add(1)
			time.Sleep(20 * time.Millisecond)
		}).
		Return(&accounting.RemoteItem{ID: "item-once"}, nil)

	const callers = 8
	results := make([]SyncResult, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.service.SyncProduct(context.Background(), product.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), creates.Load())
	for _, res := range results {
		assert.True(t, res.Success)
		assert.Equal(t, "item-once", res.RemoteID)
	}
	assert.Equal(t, 1, f.mappings.count(accounting.EntityKindProduct))
}

func TestSyncProduct_CanceledAfterRemoteCreateKeepsMapping(t *testing.T) {
	f := connectedFixture(t)
	product := testProduct("Canceled")
	f.products.On("FindByID", mock.Anything, product.ID).Return(product, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var creates atomic.Int32
	f.gateway.On("CreateItem", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			creates.Add(1)
			cancel()
		}).
		Return(&accounting.RemoteItem{ID: "item-x"}, nil)

	first := f.service.SyncProduct(ctx, product.ID)
	assert.True(t, first.Success)
	assert.Equal(t, "item-x", first.RemoteID)
	assert.Equal(t, 1, f.mappings.count(accounting.EntityKindProduct))

	second := f.service.SyncProduct(context.Background(), product.ID)
	assert.True(t, second.Success)
	assert.True(t, second.AlreadySynced)
	assert.Equal(t, "item-x", second.RemoteID)
	assert.Equal(t, int32(1), creates.Load())

	entries := f.logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, accounting.SyncLogStatusSuccess, entries[0].Status)
}

func TestSyncCustomer(t *testing.T) {
	f := connectedFixture(t)
	customer := testCustomer()
	f.customers.On("FindByID", mock.Anything, customer.ID).Return(customer, nil)

	var sent *accounting.RemoteCustomer
	f.gateway.On("CreateCustomer", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*accounting.RemoteCustomer) }).
		Return(&accounting.RemoteCustomer{ID: "cust-1", SyncToken: "0"}, nil)

	res := f.service.SyncCustomer(context.Background(), customer.ID)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "cust-1", res.RemoteID)

	require.NotNil(t, sent)
	assert.Equal(t, "Jane Doe", sent.DisplayName)
	assert.Equal(t, "jane@example.com", sent.Email)
	assert.Equal(t, "555-0100", sent.Phone)
	require.NotNil(t, sent.BillAddress)
	assert.Equal(t, "Springfield", sent.BillAddress.City)
	assert.Equal(t, "IL", sent.BillAddress.Region)

	mapping, err := f.mappings.FindByLocalID(context.Background(), accounting.EntityKindCustomer, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", mapping.RemoteSyncToken)
}

// saleFixture wires a sale with two unsynced products and an unsynced customer
func saleFixture(t *testing.T, f *syncFixture) (*trade.Sale, *partner.Customer, *catalog.Product, *catalog.Product) {
	t.Helper()
	customer := testCustomer()
	p1 := testProduct("Apple")
	p2 := testProduct("Pear")
	sale := &trade.Sale{
		ID:            uuid.New(),
		ReceiptNumber: "R-1001",
		CustomerID:    &customer.ID,
		Customer:      customer,
		Items: []trade.SaleItem{
			{ID: uuid.New(), ProductID: p1.ID, Product: p1, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(3), TotalPrice: decimal.NewFromInt(6)},
			{ID: uuid.New(), ProductID: p2.ID, Product: p2, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5)},
			{ID: uuid.New(), ProductID: p1.ID, Product: p1, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(3), TotalPrice: decimal.NewFromInt(3)},
		},
		TotalAmount: decimal.NewFromInt(14),
		CreatedAt:   time.Date(2026, 2, 10, 15, 30, 0, 0, time.UTC),
	}
	f.sales.On("FindByIDWithDetails", mock.Anything, sale.ID).Return(sale, nil)
	f.customers.On("FindByID", mock.Anything, customer.ID).Return(customer, nil)
	f.products.On("FindByID", mock.Anything, p1.ID).Return(p1, nil)
	f.products.On("FindByID", mock.Anything, p2.ID).Return(p2, nil)
	return sale, customer, p1, p2
}

func TestSyncSale(t *testing.T) {
	t.Run("syncs dependencies first and creates the invoice", func(t *testing.T) {
		f := connectedFixture(t)
		sale, _, _, _ := saleFixture(t, f)

		var mu sync.Mutex
		var order []string
		record := func(name string) func(mock.Arguments) {
			return func(mock.Arguments) {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, name)
			}
		}

		f.gateway.On("CreateCustomer", mock.Anything, mock.Anything).
			Run(record("customer")).Return(&accounting.RemoteCustomer{ID: "cust-1"}, nil).Once()
		f.gateway.On("CreateItem", mock.Anything, mock.MatchedBy(func(i *accounting.RemoteItem) bool { return i.Name == "Apple" })).
			Run(record("item")).Return(&accounting.RemoteItem{ID: "item-apple"}, nil).Once()
		f.gateway.On("CreateItem", mock.Anything, mock.MatchedBy(func(i *accounting.RemoteItem) bool { return i.Name == "Pear" })).
			Run(record("item")).Return(&accounting.RemoteItem{ID: "item-pear"}, nil).Once()

		var invoice *accounting.RemoteInvoice
		f.gateway.On("CreateInvoice", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				record("invoice")(args)
				invoice = args.Get(1).(*accounting.RemoteInvoice)
			}).
			Return(&accounting.RemoteInvoice{ID: "inv-1", SyncToken: "0"}, nil).Once()

		res := f.service.SyncSale(context.Background(), sale.ID)
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "inv-1", res.RemoteID)

		assert.Equal(t, []string{"customer", "item", "item", "invoice"}, order)
		assert.Equal(t, 1, f.mappings.count(accounting.EntityKindCustomer))
		assert.Equal(t, 2, f.mappings.count(accounting.EntityKindProduct))
		assert.Equal(t, 1, f.mappings.count(accounting.EntityKindInvoice))
		assert.GreaterOrEqual(t, len(f.logs.all()), 2)

		require.NotNil(t, invoice)
		assert.Equal(t, "R-1001", invoice.DocNumber)
		assert.Contains(t, invoice.PrivateNote, "R-1001")
		assert.Equal(t, "cust-1", invoice.CustomerRef)
		assert.Equal(t, "jane@example.com", invoice.BillEmail)
		assert.Equal(t, sale.CreatedAt, invoice.TxnDate)
		assert.Equal(t, sale.CreatedAt.AddDate(0, 0, 30), invoice.DueDate)
		require.Len(t, invoice.Lines, 3)
		assert.Equal(t, "item-apple", invoice.Lines[0].ItemRef)
		assert.True(t, invoice.Lines[0].Amount.Equal(decimal.NewFromInt(6)))
		assert.Equal(t, "item-pear", invoice.Lines[1].ItemRef)
		assert.True(t, invoice.Lines[1].Amount.Equal(decimal.NewFromInt(5)))
		assert.Equal(t, "item-apple", invoice.Lines[2].ItemRef)
	})

	t.Run("customer failure does not abort the sale", func(t *testing.T) {
		f := connectedFixture(t)
		sale, _, _, _ := saleFixture(t, f)

		f.gateway.On("CreateCustomer", mock.Anything, mock.Anything).
			Return(nil, &accounting.RemoteAPIError{StatusCode: 500, Status: "500 Internal Server Error", Message: "down"})
		f.gateway.On("CreateItem", mock.Anything, mock.Anything).Return(&accounting.RemoteItem{ID: "item-x"}, nil)
		f.gateway.On("CreateInvoice", mock.Anything, mock.MatchedBy(func(inv *accounting.RemoteInvoice) bool {
			return inv.CustomerRef == ""
		})).Return(&accounting.RemoteInvoice{ID: "inv-2"}, nil).Once()

		res := f.service.SyncSale(context.Background(), sale.ID)
		require.True(t, res.Success, res.Error)
		assert.Equal(t, 0, f.mappings.count(accounting.EntityKindCustomer))
		assert.Equal(t, 1, f.mappings.count(accounting.EntityKindInvoice))

		var customerErrors int
		for _, e := range f.logs.all() {
			if e.EntityType == accounting.EntityKindCustomer && e.Status == accounting.SyncLogStatusError {
				customerErrors++
			}
		}
		assert.Equal(t, 1, customerErrors)
	})

	t.Run("falls back to the default customer", func(t *testing.T) {
		f := newSyncFixture(t, staticTokens{}, SyncConfig{DefaultCustomerRef: "58", InvoiceDueDays: 14})
		sale, _, _, _ := saleFixture(t, f)
		sale.CustomerID = nil
		sale.Customer = nil

		f.gateway.On("CreateItem", mock.Anything, mock.Anything).Return(&accounting.RemoteItem{ID: "item-x"}, nil)
		f.gateway.On("CreateInvoice", mock.Anything, mock.MatchedBy(func(inv *accounting.RemoteInvoice) bool {
			return inv.CustomerRef == "58" && inv.DueDate.Equal(sale.CreatedAt.AddDate(0, 0, 14))
		})).Return(&accounting.RemoteInvoice{ID: "inv-3"}, nil).Once()

		res := f.service.SyncSale(context.Background(), sale.ID)
		require.True(t, res.Success, res.Error)
		f.gateway.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	})

	t.Run("unsynced product lines carry no item reference", func(t *testing.T) {
		f := connectedFixture(t)
		sale, _, _, _ := saleFixture(t, f)

		f.gateway.On("CreateCustomer", mock.Anything, mock.Anything).Return(&accounting.RemoteCustomer{ID: "cust-1"}, nil)
		f.gateway.On("CreateItem", mock.Anything, mock.MatchedBy(func(i *accounting.RemoteItem) bool { return i.Name == "Apple" })).
			Return(&accounting.RemoteItem{ID: "item-apple"}, nil)
		f.gateway.On("CreateItem", mock.Anything, mock.MatchedBy(func(i *accounting.RemoteItem) bool { return i.Name == "Pear" })).
			Return(nil, &accounting.RemoteAPIError{StatusCode: 400, Status: "400 Bad Request", Message: "invalid"})

		var invoice *accounting.RemoteInvoice
		f.gateway.On("CreateInvoice", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { invoice = args.Get(1).(*accounting.RemoteInvoice) }).
			Return(&accounting.RemoteInvoice{ID: "inv-4"}, nil)

		res := f.service.SyncSale(context.Background(), sale.ID)
		require.True(t, res.Success, res.Error)
		require.NotNil(t, invoice)
		assert.Equal(t, "item-apple", invoice.Lines[0].ItemRef)
		assert.Empty(t, invoice.Lines[1].ItemRef)
		assert.Equal(t, "Pear description", invoice.Lines[1].Description)
		assert.True(t, invoice.Lines[1].Amount.Equal(decimal.NewFromInt(5)))
	})

	t.Run("synced sale short-circuits", func(t *testing.T) {
		f := connectedFixture(t)
		saleID := uuid.New()
		f.mappings.put(accounting.EntityKindInvoice, saleID, "inv-9")

		res := f.service.SyncSale(context.Background(), saleID)
		assert.True(t, res.Success)
		assert.True(t, res.AlreadySynced)
		assert.Equal(t, "inv-9", res.RemoteID)
		f.sales.AssertNotCalled(t, "FindByIDWithDetails", mock.Anything, mock.Anything)
		assert.Empty(t, f.logs.all())
	})
}

func TestSyncOne_InvalidKind(t *testing.T) {
	f := connectedFixture(t)

	res := f.service.SyncOne(context.Background(), "vendor", uuid.New())
	assert.False(t, res.Success)
	assert.Equal(t, accounting.ErrInvalidEntityKind.Error(), res.Error)
}

func TestSyncAll(t *testing.T) {
	t.Run("aggregates outcomes into one log entry", func(t *testing.T) {
		f := connectedFixture(t)
		mapped := testProduct("Mapped")
		fresh := testProduct("Fresh")
		broken := testProduct("Broken")
		f.mappings.put(accounting.EntityKindProduct, mapped.ID, "item-old")

		f.products.On("FindAll", mock.Anything, mock.MatchedBy(func(filter shared.Filter) bool { return filter.Page == 1 })).
			Return([]catalog.Product{*mapped, *fresh, *broken}, nil).Once()
		f.products.On("FindByID", mock.Anything, fresh.ID).Return(fresh, nil)
		f.products.On("FindByID", mock.Anything, broken.ID).Return(broken, nil)
		f.gateway.On("CreateItem", mock.Anything, mock.MatchedBy(func(i *accounting.RemoteItem) bool { return i.Name == "Fresh" })).
			Return(&accounting.RemoteItem{ID: "item-new"}, nil)
		f.gateway.On("CreateItem", mock.Anything, mock.MatchedBy(func(i *accounting.RemoteItem) bool { return i.Name == "Broken" })).
			Return(nil, &accounting.RemoteAPIError{StatusCode: 400, Status: "400 Bad Request", Message: "bad item"})

		res := f.service.SyncAllProducts(context.Background())
		assert.False(t, res.Success)
		assert.Equal(t, accounting.EntityKindProduct, res.Kind)
		assert.Equal(t, 3, res.Total)
		assert.Equal(t, 2, res.Synced)
		assert.Equal(t, 1, res.Errors)
		assert.False(t, res.Canceled)

		entries := f.logs.all()
		require.Len(t, entries, 1)
		assert.Equal(t, accounting.SyncLogStatusError, entries[0].Status)
		assert.Equal(t, 2, entries[0].RecordsProcessed)
		assert.Contains(t, entries[0].ErrorMessage, "1 of 3 failed")
		assert.Contains(t, entries[0].ErrorMessage, "bad item")
	})

	t.Run("walks every page", func(t *testing.T) {
		f := newSyncFixture(t, staticTokens{}, SyncConfig{BatchSize: 2})
		customers := []*partner.Customer{testCustomer(), testCustomer(), testCustomer()}
		for _, c := range customers {
			f.mappings.put(accounting.EntityKindCustomer, c.ID, "cust-"+c.ID.String())
		}
		f.customers.On("FindAll", mock.Anything, mock.MatchedBy(func(filter shared.Filter) bool { return filter.Page == 1 && filter.PageSize == 2 })).
			Return([]partner.Customer{*customers[0], *customers[1]}, nil).Once()
		f.customers.On("FindAll", mock.Anything, mock.MatchedBy(func(filter shared.Filter) bool { return filter.Page == 2 })).
			Return([]partner.Customer{*customers[2]}, nil).Once()

		res := f.service.SyncAllCustomers(context.Background())
		assert.True(t, res.Success)
		assert.Equal(t, 3, res.Total)
		assert.Equal(t, 3, res.Synced)

		entries := f.logs.all()
		require.Len(t, entries, 1)
		assert.Equal(t, accounting.SyncLogStatusSuccess, entries[0].Status)
		assert.Equal(t, 3, entries[0].RecordsProcessed)
		f.customers.AssertExpectations(t)
	})

	t.Run("batch size is capped at the repository page limit", func(t *testing.T) {
		f := newSyncFixture(t, staticTokens{}, SyncConfig{BatchSize: 2 * MaxBatchSize})
		assert.Equal(t, MaxBatchSize, f.service.cfg.BatchSize)

		full := make([]catalog.Product, MaxBatchSize)
		for i := range full {
			full[i] = *testProduct("Bulk")
			f.mappings.put(accounting.EntityKindProduct, full[i].ID, "item-"+full[i].ID.String())
		}
		rest := make([]catalog.Product, 200)
		for i := range rest {
			rest[i] = *testProduct("Rest")
			f.mappings.put(accounting.EntityKindProduct, rest[i].ID, "item-"+rest[i].ID.String())
		}
		f.products.On("FindAll", mock.Anything, mock.MatchedBy(func(filter shared.Filter) bool {
			return filter.Page == 1 && filter.PageSize == MaxBatchSize
		})).Return(full, nil).Once()
		f.products.On("FindAll", mock.Anything, mock.MatchedBy(func(filter shared.Filter) bool { return filter.Page == 2 })).
			Return(rest, nil).Once()

		res := f.service.SyncAllProducts(context.Background())
		assert.True(t, res.Success)
		assert.Equal(t, MaxBatchSize+200, res.Total)
		assert.Equal(t, MaxBatchSize+200, res.Synced)
		f.products.AssertExpectations(t)
	})

	t.Run("not connected writes no log", func(t *testing.T) {
		f := newSyncFixture(t, staticTokens{err: accounting.ErrNotConnected}, SyncConfig{})

		res := f.service.SyncAllSales(context.Background())
		assert.False(t, res.Success)
		assert.True(t, res.NotConnected())
		assert.Empty(t, f.logs.all())
		f.sales.AssertNotCalled(t, "FindAll", mock.Anything, mock.Anything)
	})

	t.Run("stops when the context is canceled", func(t *testing.T) {
		f := connectedFixture(t)
		first := testProduct("First")
		second := testProduct("Second")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		f.products.On("FindAll", mock.Anything, mock.Anything).
			Return([]catalog.Product{*first, *second}, nil).Once()
		f.products.On("FindByID", mock.Anything, first.ID).Return(first, nil)
		f.gateway.On("CreateItem", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(&accounting.RemoteItem{ID: "item-first"}, nil).Once()

		res := f.service.SyncAllProducts(ctx)
		assert.True(t, res.Canceled)
		assert.False(t, res.Success)
		assert.Equal(t, 1, res.Total)
		assert.Equal(t, 1, res.Synced)
		f.products.AssertNotCalled(t, "FindByID", mock.Anything, second.ID)

		entries := f.logs.all()
		require.Len(t, entries, 1)
		assert.Equal(t, accounting.SyncLogStatusError, entries[0].Status)
		assert.Equal(t, 1, entries[0].RecordsProcessed)
		assert.Contains(t, entries[0].ErrorMessage, "context canceled")
	})

	t.Run("invalid kind", func(t *testing.T) {
		f := connectedFixture(t)
		res := f.service.SyncAll(context.Background(), "vendor")
		assert.False(t, res.Success)
		assert.Equal(t, accounting.ErrInvalidEntityKind.Error(), res.Error)
	})
}

func TestSendInvoice(t *testing.T) {
	t.Run("requires a synced sale", func(t *testing.T) {
		f := connectedFixture(t)

		_, err := f.service.SendInvoice(context.Background(), uuid.New(), "a@example.com")
		assert.ErrorIs(t, err, accounting.ErrInvoiceNotSynced)
	})

	t.Run("sends the mapped invoice", func(t *testing.T) {
		f := connectedFixture(t)
		saleID := uuid.New()
		f.mappings.put(accounting.EntityKindInvoice, saleID, "inv-7")
		f.gateway.On("SendInvoice", mock.Anything, "inv-7", "a@example.com").
			Return(&accounting.RemoteInvoice{ID: "inv-7", EmailStatus: "EmailSent"}, nil).Once()

		invoice, err := f.service.SendInvoice(context.Background(), saleID, " a@example.com ")
		require.NoError(t, err)
		assert.Equal(t, "EmailSent", invoice.EmailStatus)
		f.gateway.AssertExpectations(t)
	})
}
