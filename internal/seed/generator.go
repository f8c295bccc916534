package seed

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

const TimestampLayout = "2006-01-02 15:04:05"

type Order struct {
	OrderID                string `parquet:"order_id"`
	CustomerID             string `parquet:"customer_id"`
	OrderStatus            string `parquet:"order_status"`
	OrderPurchaseTimestamp string `parquet:"order_purchase_timestamp"`
}

type OrderItem struct {
	OrderID      string  `parquet:"order_id"`
	OrderItemID  int32   `parquet:"order_item_id"`
	ProductID    string  `parquet:"product_id"`
	SellerID     string  `parquet:"seller_id"`
	Price        float64 `parquet:"price"`
	FreightValue float64 `parquet:"freight_value"`
}

type Product struct {
	ProductID           string `parquet:"product_id"`
	ProductCategoryName string `parquet:"product_category_name"`
}

type Payment struct {
	OrderID             string  `parquet:"order_id"`
	PaymentSequential   int32   `parquet:"payment_sequential"`
	PaymentType         string  `parquet:"payment_type"`
	PaymentInstallments int32   `parquet:"payment_installments"`
	PaymentValue        float64 `parquet:"payment_value"`
}

type Customer struct {
	CustomerID       string `parquet:"customer_id"`
	CustomerUniqueID string `parquet:"customer_unique_id"`
	CustomerCity     string `parquet:"customer_city"`
	CustomerState    string `parquet:"customer_state"`
}

// Dataset is one generated copy of the five Olist tables.
type Dataset struct {
	Orders    []Order
	Items     []OrderItem
	Products  []Product
	Payments  []Payment
	Customers []Customer
}

type Options struct {
	Orders    int
	Customers int
	Products  int
	Sellers   int
	// End is the purchase timestamp of the newest order.
	End  time.Time
	Span time.Duration
}

var (
	categories = []string{
		"eletronicos",
		"moveis_decoracao",
		"fashion_bolsas_e_acessorios",
		"beleza_saude",
		"brinquedos",
		"livros_tecnicos",
		"cama_mesa_banho",
		"esporte_lazer",
	}
	customerLocations = []struct{ city, state string }{
		{"sao paulo", "SP"},
		{"campinas", "SP"},
		{"rio de janeiro", "RJ"},
		{"belo horizonte", "MG"},
		{"porto alegre", "RS"},
		{"curitiba", "PR"},
		{"salvador", "BA"},
		{"florianopolis", "SC"},
	}
	paymentTypes = []string{"credit_card", "boleto", "voucher", "debit_card"}
)

type Generator struct {
	rnd *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Generate(opts Options) (Dataset, error) {
	if opts.Orders <= 0 {
		return Dataset{}, fmt.Errorf("orders must be > 0")
	}
	if opts.Customers <= 0 {
		return Dataset{}, fmt.Errorf("customers must be > 0")
	}
	if opts.Products <= 0 {
		return Dataset{}, fmt.Errorf("products must be > 0")
	}
	if opts.Sellers <= 0 {
		opts.Sellers = 1
	}
	if opts.End.IsZero() {
		return Dataset{}, fmt.Errorf("end timestamp is required")
	}
	if opts.Span < 0 {
		return Dataset{}, fmt.Errorf("span must be >= 0")
	}
	end := opts.End.UTC().Truncate(time.Second)

	out := Dataset{
		Customers: make([]Customer, 0, opts.Customers),
		Products:  make([]Product, 0, opts.Products),
		Orders:    make([]Order, 0, opts.Orders),
	}
	for i := 1; i <= opts.Customers; i++ {
		location := customerLocations[g.rnd.Intn(len(customerLocations))]
		out.Customers = append(out.Customers, Customer{
			CustomerID:       fmt.Sprintf("cust-%06d", i),
			CustomerUniqueID: fmt.Sprintf("uniq-%08x", g.rnd.Uint32()),
			CustomerCity:     location.city,
			CustomerState:    location.state,
		})
	}
	for i := 1; i <= opts.Products; i++ {
		out.Products = append(out.Products, Product{
			ProductID:           fmt.Sprintf("prod-%05d", i),
			ProductCategoryName: categories[(i-1)%len(categories)],
		})
	}

	for i := 1; i <= opts.Orders; i++ {
		orderID := fmt.Sprintf("order-%07d", i)
		purchasedAt := end
		if i > 1 && opts.Span > 0 {
			purchasedAt = end.Add(-time.Duration(g.rnd.Int63n(int64(opts.Span)))).Truncate(time.Second)
		}
		status := g.pickStatus()
		out.Orders = append(out.Orders, Order{
			OrderID:                orderID,
			CustomerID:             out.Customers[g.rnd.Intn(len(out.Customers))].CustomerID,
			OrderStatus:            status,
			OrderPurchaseTimestamp: purchasedAt.Format(TimestampLayout),
		})

		var total float64
		itemCount := 1 + g.rnd.Intn(3)
		for item := 1; item <= itemCount; item++ {
			price := round2(10 + g.rnd.Float64()*490)
			freight := round2(5 + g.rnd.Float64()*40)
			total += price + freight
			out.Items = append(out.Items, OrderItem{
				OrderID:      orderID,
				OrderItemID:  int32(item),
				ProductID:    out.Products[g.rnd.Intn(len(out.Products))].ProductID,
				SellerID:     fmt.Sprintf("seller-%04d", g.rnd.Intn(opts.Sellers)+1),
				Price:        price,
				FreightValue: freight,
			})
		}
		out.Payments = append(out.Payments, g.payments(orderID, round2(total))...)
	}
	return out, nil
}

func (g *Generator) payments(orderID string, total float64) []Payment {
	paymentType := paymentTypes[g.rnd.Intn(len(paymentTypes))]
	installments := int32(1)
	if paymentType == "credit_card" {
		installments = int32(1 + g.rnd.Intn(10))
	}
	if paymentType != "voucher" || total < 20 {
		return []Payment{{
			OrderID:             orderID,
			PaymentSequential:   1,
			PaymentType:         paymentType,
			PaymentInstallments: installments,
			PaymentValue:        total,
		}}
	}
	voucher := round2(total * 0.2)
	return []Payment{
		{OrderID: orderID, PaymentSequential: 1, PaymentType: "voucher", PaymentInstallments: 1, PaymentValue: voucher},
		{OrderID: orderID, PaymentSequential: 2, PaymentType: "credit_card", PaymentInstallments: 1, PaymentValue: round2(total - voucher)},
	}
}

func (g *Generator) pickStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 90:
		return "delivered"
	case p < 95:
		return "shipped"
	case p < 98:
		return "invoiced"
	default:
		return "canceled"
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
