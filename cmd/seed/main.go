package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookline/booking-engine/internal/api"
	"github.com/bookline/booking-engine/internal/booking"
	"github.com/bookline/booking-engine/internal/db"
)

// Seeds an admin, a handful of demo users, and the default weekly
// availability schedule. Prints ready-to-use bearer tokens when JWT_SECRET
// is set.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, db.PoolSettings{DSN: dsn, MaxConns: 4})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@bookline.local"
	}

	adminID, err := seedUser(context.Background(), pool, "Admin", adminEmail, booking.RoleAdmin)
	if err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	userIDs := make(map[string]uuid.UUID)
	for i := 0; i < 5; i++ {
		name := gofakeit.Name()
		email := gofakeit.Email()
		id, err := seedUser(context.Background(), pool, name, email, booking.RoleUser)
		if err != nil {
			log.Fatalf("seed user: %v", err)
		}
		userIDs[email] = id
	}

	if err := seedDefaultRules(context.Background(), pool); err != nil {
		log.Fatalf("seed availability rules: %v", err)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		auth := api.NewAuthenticator(secret)
		printToken(auth, adminID, adminEmail, booking.RoleAdmin)
		for email, id := range userIDs {
			printToken(auth, id, email, booking.RoleUser)
		}
	}

	log.Println("seed complete")
}

func seedUser(ctx context.Context, pool *pgxpool.Pool, name, email string, role booking.Role) (uuid.UUID, error) {
	id := uuid.New()
	err := pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, id, name, email, role).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	log.Printf("user ready: %s (%s)", email, role)
	return id, nil
}

func seedDefaultRules(ctx context.Context, pool *pgxpool.Pool) error {
	repo := booking.NewPgRepository(pool)

	count, err := repo.CountAvailabilityRules(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		log.Println("availability rules already present, skipping")
		return nil
	}

	var rules []booking.AvailabilityRule
	for day := 1; day <= 5; day++ {
		rules = append(rules, booking.AvailabilityRule{
			DayOfWeek:   day,
			StartTime:   "09:00",
			EndTime:     "17:00",
			IsAvailable: true,
		})
	}
	if err := repo.CreateAvailabilityRules(ctx, rules); err != nil {
		return err
	}
	log.Println("default weekday availability seeded")
	return nil
}

func printToken(auth *api.Authenticator, id uuid.UUID, email string, role booking.Role) {
	token, err := auth.IssueToken(api.Identity{UserID: id, Email: email, Role: role}, 24*time.Hour)
	if err != nil {
		log.Printf("issue token for %s: %v", email, err)
		return
	}
	log.Printf("token for %s: %s", email, token)
}
