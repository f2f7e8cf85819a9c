package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"shopfront/internal/api"
	"shopfront/internal/cart"
	"shopfront/internal/catalog"
	"shopfront/internal/config"
	"shopfront/internal/localstore"
	"shopfront/internal/logging"
	"shopfront/internal/models"
	"shopfront/internal/notify"
	"shopfront/internal/session"
)

const usage = `usage: shopfront <command> [args]

  login <email> <password>   authenticate
  logout                     end the session
  me                         show the current user
  products [page]            list the catalog
  search <query>             search the catalog
  cart                       show the cart
  add <productID> <qty> [sku]  add a product to the cart
  update <index> <qty>       change a line's quantity
  remove <index>             remove a line
  clear                      empty the cart
  validate                   check the cart against stock
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.LOG_LEVEL)

	store, err := localstore.Open(cfg.LOCAL_STORE_PATH)
	if err != nil {
		log.Fatalf("local store: %v", err)
	}

	notifier := &notify.SlogNotifier{Log: logger}
	client := api.New(cfg.API_BASE_URL, store, notifier, logger)
	nav := session.NavigatorFunc(func() {
		fmt.Println("session ended, please log in again")
	})
	sess := session.New(client, store, notifier, nav, logger, cfg.REFRESH_PERIOD, cfg.INACTIVITY_THRESHOLD)
	basket := cart.New(sess, client, store, notifier, nil, logger)
	shop := catalog.New(client)

	ctx := context.Background()
	sess.RestoreOnStartup(ctx)
	sess.RecordActivity()

	if err := run(ctx, os.Args[1], os.Args[2:], sess, basket, shop); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, sess *session.Manager, basket *cart.Reconciler, shop *catalog.Client) error {
	switch command {
	case "login":
		if len(args) < 2 {
			return fmt.Errorf("login needs <email> <password>")
		}
		user, err := sess.Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (%s)\n", user.Email, user.Role)
		return nil

	case "logout":
		sess.Logout(ctx)
		fmt.Println("logged out")
		return nil

	case "me":
		user := sess.CurrentUser()
		if user == nil {
			fmt.Println("not logged in")
			return nil
		}
		fmt.Printf("%s %s <%s> role=%s status=%s\n", user.FirstName, user.LastName, user.Email, user.Role, user.Status)
		return nil

	case "products":
		page := 1
		if len(args) > 0 {
			page, _ = strconv.Atoi(args[0])
		}
		res, err := shop.List(ctx, page, 10)
		if err != nil {
			return err
		}
		for _, p := range res.Products {
			fmt.Printf("#%d  %-30s %8.2f  (stock %d)\n", p.ID, p.Name, p.Price, p.Count)
		}
		fmt.Printf("%d products total\n", res.Total)
		return nil

	case "search":
		if len(args) < 1 {
			return fmt.Errorf("search needs <query>")
		}
		res, err := shop.Search(ctx, args[0], 1, 10)
		if err != nil {
			return err
		}
		for _, p := range res.Products {
			fmt.Printf("#%d  %-30s %8.2f\n", p.ID, p.Name, p.Price)
		}
		return nil

	case "cart":
		if err := basket.Reload(ctx); err != nil {
			return err
		}
		items := basket.Items()
		if len(items) == 0 {
			fmt.Println("cart is empty")
			return nil
		}
		for i, it := range items {
			fmt.Printf("[%d] %s (%s) x%d @ %.2f\n", i, it.Name, it.VariantSKU, it.Quantity, it.UnitPrice)
		}
		fmt.Printf("items: %d  subtotal: %.2f\n", basket.BadgeCount(), basket.Subtotal())
		return nil

	case "add":
		if len(args) < 2 {
			return fmt.Errorf("add needs <productID> <qty> [sku]")
		}
		productID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil || qty < 1 {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		sku := ""
		if len(args) > 2 {
			sku = args[2]
		}
		product, err := shop.Get(ctx, uint(productID))
		if err != nil {
			return err
		}
		item := basketLine(product, uint(qty), sku)
		if err := basket.AddItem(ctx, item); err != nil {
			return err
		}
		fmt.Printf("added %dx %s\n", qty, product.Name)
		return nil

	case "update":
		index, qty, err := indexQty(args)
		if err != nil {
			return err
		}
		return basket.UpdateQuantity(ctx, index, qty)

	case "remove":
		if len(args) < 1 {
			return fmt.Errorf("remove needs <index>")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[0])
		}
		return basket.RemoveItem(ctx, index)

	case "clear":
		return basket.ClearCart(ctx)

	case "validate":
		res, err := basket.ValidateCart(ctx)
		if err != nil {
			return err
		}
		if res.Valid {
			fmt.Println("cart is valid")
			return nil
		}
		for _, e := range res.Errors {
			fmt.Println("-", e)
		}
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func basketLine(p *models.Product, qty uint, sku string) models.CartLineItem {
	return models.CartLineItem{
		ProductID:  p.ID,
		VariantSKU: sku,
		Quantity:   qty,
		UnitPrice:  p.Price,
		Name:       p.Name,
		Image:      p.Image,
	}
}

func indexQty(args []string) (int, uint, error) {
	if len(args) < 2 {
		return 0, 0, fmt.Errorf("need <index> <qty>")
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid index %q", args[0])
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil || qty < 1 {
		return 0, 0, fmt.Errorf("invalid quantity %q", args[1])
	}
	return index, uint(qty), nil
}
