// Seed tool for provisioning a Shrike development database.
//
// Usage:
//   go run cmd/seed/main.go -db ./shrike.db -customers 200 -suspects 20
//
// This tool:
//   1. Creates synthetic customers with accounts and identity fields
//   2. Links beneficiary payees across customers
//   3. Populates the suspect list, prior-complaint feed and ledger
//   4. Registers the standard workflow users (CRO, officers, departments)
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/repository"
)

func main() {
	dbPath := flag.String("db", "./shrike.db", "Path to the SQLite database")
	customers := flag.Int("customers", 200, "Number of synthetic customers")
	suspects := flag.Int("suspects", 20, "Number of suspect-list entries")
	complaints := flag.Int("complaints", 30, "Number of prior cybercrime complaints")
	ledgerRows := flag.Int("ledger", 500, "Number of ledger entries")
	seed := flag.Int64("seed", 42, "Random seed for reproducible data")
	flag.Parse()

	fmt.Println("Shrike seed tool")
	fmt.Printf("  Database:   %s\n", *dbPath)
	fmt.Printf("  Customers:  %d\n", *customers)
	fmt.Printf("  Suspects:   %d\n", *suspects)
	fmt.Printf("  Complaints: %d\n", *complaints)
	fmt.Printf("  Ledger:     %d\n", *ledgerRows)
	fmt.Println()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: *dbPath,
	})
	if err != nil {
		fmt.Printf("ERROR: failed to open repository: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(*seed))
	start := time.Now()

	accounts, err := seedCustomers(ctx, repo, rng, *customers)
	if err != nil {
		fmt.Printf("ERROR: seeding customers: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  seeded %d customers with accounts\n", *customers)

	if err := seedBeneficiaries(ctx, repo, rng, accounts); err != nil {
		fmt.Printf("ERROR: seeding beneficiaries: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("  seeded beneficiary links")

	if err := seedSuspects(ctx, repo, rng, *suspects); err != nil {
		fmt.Printf("ERROR: seeding suspects: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  seeded %d suspect entries\n", *suspects)

	if err := seedComplaints(ctx, repo, rng, *complaints); err != nil {
		fmt.Printf("ERROR: seeding complaints: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  seeded %d prior complaints\n", *complaints)

	if err := seedLedger(ctx, repo, rng, accounts, *ledgerRows); err != nil {
		fmt.Printf("ERROR: seeding ledger: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  seeded %d ledger entries\n", *ledgerRows)

	if err := seedUsers(ctx, repo); err != nil {
		fmt.Printf("ERROR: seeding users: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("  seeded workflow users")

	fmt.Printf("\nDone in %v\n", time.Since(start).Round(time.Millisecond))
}

// account numbers are 10 digits, ledger counterparties may be external.
func accountNumber(rng *rand.Rand) string {
	return fmt.Sprintf("%010d", 1000000000+rng.Int63n(8999999999))
}

func mobileNumber(rng *rand.Rand) string {
	return fmt.Sprintf("9%09d", rng.Int63n(1000000000))
}

func seedCustomers(ctx context.Context, repo *repository.SQLRepository, rng *rand.Rand, n int) ([]string, error) {
	accounts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("cust-%05d", i+1)
		c := &domain.Customer{
			ID:     id,
			Name:   fmt.Sprintf("Customer %05d", i+1),
			Mobile: mobileNumber(rng),
			Email:  fmt.Sprintf("customer%05d@example.com", i+1),
			UPI:    fmt.Sprintf("customer%05d@upi", i+1),
		}
		if err := repo.InsertCustomer(ctx, c); err != nil {
			return nil, err
		}

		acct := accountNumber(rng)
		accounts = append(accounts, acct)
		link := &domain.AccountLink{
			AccountNumber: acct,
			CustomerID:    id,
			OpenedAt:      time.Now().UTC().AddDate(-rng.Intn(5), -rng.Intn(12), 0),
		}
		if err := repo.InsertAccountLink(ctx, link); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

// seedBeneficiaries saves roughly a third of accounts as payees of other
// customers, some shared by several savers so ingest dedup has work to do.
func seedBeneficiaries(ctx context.Context, repo *repository.SQLRepository, rng *rand.Rand, accounts []string) error {
	for i, acct := range accounts {
		if i%3 != 0 {
			continue
		}
		savers := 1 + rng.Intn(3)
		for s := 0; s < savers; s++ {
			custIdx := rng.Intn(len(accounts))
			if accounts[custIdx] == acct {
				continue
			}
			link := &domain.BeneficiaryLink{
				CustomerID:         fmt.Sprintf("cust-%05d", custIdx+1),
				BeneficiaryAccount: acct,
				AddedAt:            time.Now().UTC().AddDate(0, 0, -rng.Intn(365)),
			}
			if err := repo.InsertBeneficiaryLink(ctx, link); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedSuspects(ctx context.Context, repo *repository.SQLRepository, rng *rand.Rand, n int) error {
	sources := []string{"national_watchlist", "bank_internal", "law_enforcement"}
	for i := 0; i < n; i++ {
		s := &domain.SuspectEntry{
			ID:      uuid.New().String(),
			Account: accountNumber(rng),
			Mobile:  mobileNumber(rng),
			Source:  sources[rng.Intn(len(sources))],
		}
		if err := repo.InsertSuspect(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func seedComplaints(ctx context.Context, repo *repository.SQLRepository, rng *rand.Rand, n int) error {
	for i := 0; i < n; i++ {
		c := &domain.CyberComplaint{
			AckNo:      fmt.Sprintf("NCRP%08d", rng.Int63n(100000000)),
			Account:    accountNumber(rng),
			Mobile:     mobileNumber(rng),
			ReportedAt: time.Now().UTC().AddDate(0, 0, -rng.Intn(180)),
		}
		if err := repo.InsertCyberComplaint(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// seedLedger writes transfers between seeded accounts spread over the
// trailing 120 days, so some fall inside the oracle's transfer window and
// some outside it.
func seedLedger(ctx context.Context, repo *repository.SQLRepository, rng *rand.Rand, accounts []string, n int) error {
	if len(accounts) < 2 {
		return fmt.Errorf("need at least two accounts, have %d", len(accounts))
	}
	for i := 0; i < n; i++ {
		from := accounts[rng.Intn(len(accounts))]
		to := accounts[rng.Intn(len(accounts))]
		if from == to {
			continue
		}
		e := &domain.LedgerEntry{
			ID:          uuid.New().String(),
			RRN:         fmt.Sprintf("%012d", rng.Int63n(1000000000000)),
			FromAccount: from,
			ToAccount:   to,
			Amount:      decimal.NewFromInt(int64(100 + rng.Intn(50000))),
			TxnDate:     time.Now().UTC().AddDate(0, 0, -rng.Intn(120)),
		}
		if err := repo.InsertLedgerEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func seedUsers(ctx context.Context, repo *repository.SQLRepository) error {
	fraud := "fraud"
	legal := "legal"
	users := []*domain.UserAccount{
		{Username: "cro", Role: domain.RoleCRO},
		{Username: "officer.anita", Role: domain.RoleRiskOfficer},
		{Username: "officer.vikram", Role: domain.RoleRiskOfficer},
		{Username: "fraud.analyst", Role: domain.RoleOthers, Department: &fraud},
		{Username: "fraud.supervisor", Role: domain.RoleSupervisor, Department: &fraud},
		{Username: "legal.analyst", Role: domain.RoleOthers, Department: &legal},
		{Username: "legal.supervisor", Role: domain.RoleSupervisor, Department: &legal},
	}
	for _, u := range users {
		if err := repo.UpsertUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
