package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	appconfig "github.com/clinicvoice/booking-engine/internal/config"
	"github.com/clinicvoice/booking-engine/internal/contacts"
	"github.com/clinicvoice/booking-engine/internal/sms"
	"github.com/clinicvoice/booking-engine/internal/tenants"
	"github.com/clinicvoice/booking-engine/internal/vault"
)

// Seeds a demo tenant with sealed SMS credentials and a handful of contacts
// so the tool-call surface can be exercised locally end to end.
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("create pgx pool: %v", err)
	}
	defer pool.Close()

	tenantID := os.Getenv("SEED_TENANT_ID")
	if tenantID == "" {
		tenantID = "demo-clinic"
	}

	tenantStore := tenants.NewStore(pool)
	if err := tenantStore.Upsert(ctx, &tenants.Tenant{
		ID:           tenantID,
		BusinessName: gofakeit.Company(),
		AlertPhone:   "+1" + gofakeit.Numerify("##########"),
		OwnerEmail:   gofakeit.Email(),
		Timezone:     "America/New_York",
	}); err != nil {
		log.Fatalf("seed tenant: %v", err)
	}

	cipher, err := vault.NewCipher(cfg.VaultMasterKey)
	if err != nil {
		log.Fatalf("vault cipher: %v", err)
	}
	creds := vault.SMSCredentials{
		Provider:        sms.ProviderTelnyx,
		TelnyxAPIKey:    os.Getenv("SEED_TELNYX_API_KEY"),
		TelnyxProfileID: os.Getenv("SEED_TELNYX_PROFILE_ID"),
		FromNumber:      "+15550100000",
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		log.Fatalf("marshal credentials: %v", err)
	}
	sealed, err := cipher.Seal(tenantID, plaintext)
	if err != nil {
		log.Fatalf("seal credentials: %v", err)
	}
	if err := vault.NewStore(pool).Upsert(ctx, tenantID, vault.ProviderSMS, sealed); err != nil {
		log.Fatalf("seed credentials: %v", err)
	}

	contactStore := contacts.NewStore(pool)
	for i := 0; i < 5; i++ {
		phone := "+1" + gofakeit.Numerify("##########")
		if _, err := contactStore.InsertOrFind(ctx, nil, tenantID, gofakeit.Name(), phone, gofakeit.Email()); err != nil {
			log.Fatalf("seed contact: %v", err)
		}
	}

	log.Printf("seeded tenant %s with credentials and 5 contacts", tenantID)
}
