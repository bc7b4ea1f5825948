package main

import (
	"context"
	"flag"
	"log"

	"backfeed/internal/config"
	"backfeed/internal/db"
	"backfeed/internal/service"
)

func main() {
	tokens := flag.Float64("tokens", -1, "initial tokens (policy default when negative)")
	reputation := flag.Float64("reputation", -1, "initial reputation (policy default when negative)")
	referrer := flag.Int64("referrer", 0, "referrer user id")
	contribute := flag.Bool("contribute", false, "also create a contribution for the user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	pol, err := cfg.Policy()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	store, closeStore, err := db.OpenStore(ctx, cfg.StoreDriver, cfg.DatabaseURL, false)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	svc, err := service.NewAccountingService(store, pol)
	if err != nil {
		log.Fatal(err)
	}

	var params service.UserParams
	if *tokens >= 0 {
		params.Tokens = tokens
	}
	if *reputation >= 0 {
		params.Reputation = reputation
	}
	if *referrer != 0 {
		params.ReferrerID = referrer
	}

	u, err := svc.CreateUser(ctx, params)
	if err != nil {
		log.Fatalf("create user failed: %v", err)
	}
	log.Printf("user created id=%d tokens=%.4f reputation=%.4f\n", u.ID, u.Tokens, u.Reputation)

	if *contribute {
		c, err := svc.CreateContribution(ctx, u.ID, "")
		if err != nil {
			log.Fatalf("create contribution failed: %v", err)
		}
		log.Printf("contribution created id=%d type=%s token_fund=%.4f\n", c.ID, c.Type, c.TokenFund)
	}
}
