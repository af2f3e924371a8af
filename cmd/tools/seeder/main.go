package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/alexedwards/argon2id"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedAccounts(db)
	seedProducts(db)
	seedClients(db)
	seedVenues(db)

	log.Println("Seeding completed successfully!")
}

func seedAccounts(db *sql.DB) {
	accounts := []struct {
		Name  string
		Email string
	}{
		{"Administrador", "admin@cunhafestas.com.br"},
		{"Operador Balcao", "balcao@cunhafestas.com.br"},
	}

	fmt.Println("Seeding Accounts...")
	for _, a := range accounts {
		hash, err := argon2id.CreateHash("trocar123", argon2id.DefaultParams)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		_, err = db.Exec(`
			INSERT INTO usuarios (nome, email, senha_hash)
			VALUES ($1, $2, $3)
			ON CONFLICT (email) DO NOTHING;
		`, a.Name, a.Email, hash)
		if err != nil {
			log.Printf("Failed to seed account %s: %v", a.Email, err)
		}
	}
}

func seedProducts(db *sql.DB) {
	products := []struct {
		Name       string
		DailyRate  float64
		DamageFee  float64
		TotalQty   int
		Descricao  string
	}{
		{"Mesa redonda 8 lugares", 25.00, 180.00, 40, "Mesa de madeira com tampo redondo 1,60m"},
		{"Cadeira Tiffany dourada", 6.50, 45.00, 300, "Cadeira de resina com assento estofado"},
		{"Toalha redonda branca", 8.00, 60.00, 60, "Tecido oxford 3,20m"},
		{"Tenda piramidal 10x10", 450.00, 3200.00, 4, "Estrutura galvanizada com lona branca"},
		{"Jogo americano rattan", 2.50, 18.00, 200, ""},
		{"Taca de cristal 300ml", 1.80, 12.00, 500, ""},
		{"Rechaud inox 9L", 35.00, 260.00, 12, "Banho-maria a alcool gel"},
		{"Pista de danca 5x5", 600.00, 4500.00, 2, "Modulos de madeira laqueada"},
	}

	fmt.Println("Seeding Products...")
	for _, p := range products {
		_, err := db.Exec(`
			INSERT INTO produtos (nome, valor_diaria, valor_danificacao, quantidade_total, descricao)
			SELECT $1, $2, $3, $4, NULLIF($5, '')
			WHERE NOT EXISTS (SELECT 1 FROM produtos WHERE nome = $1);
		`, p.Name, p.DailyRate, p.DamageFee, p.TotalQty, p.Descricao)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.Name, err)
		}
	}
}

func seedClients(db *sql.DB) {
	clients := []struct {
		Name     string
		Email    string
		Phone    string
		Document string
		City     string
	}{
		{"Maria Aparecida Souza", "maria.souza@example.com", "31988881111", "123.456.789-00", "Belo Horizonte"},
		{"Buffet Recanto das Flores", "contato@recantoflores.com.br", "3133332222", "12.345.678/0001-90", "Contagem"},
		{"Joao Pedro Lima", "joao.lima@example.com", "31977775555", "987.654.321-00", "Betim"},
	}

	fmt.Println("Seeding Clients...")
	for _, c := range clients {
		_, err := db.Exec(`
			INSERT INTO clientes (nome, email, telefone, documento, cidade)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (documento) WHERE documento IS NOT NULL DO NOTHING;
		`, c.Name, c.Email, c.Phone, c.Document, c.City)
		if err != nil {
			log.Printf("Failed to seed client %s: %v", c.Name, err)
		}
	}
}

func seedVenues(db *sql.DB) {
	venues := []struct {
		Name     string
		Address  string
		City     string
		Capacity int
	}{
		{"Salao Primavera", "Rua das Acacias, 120", "Belo Horizonte", 250},
		{"Chacara Bela Vista", "Estrada do Cercadinho, km 4", "Brumadinho", 400},
		{"Espaco Jardim Real", "Av. Amazonas, 3500", "Contagem", 180},
	}

	fmt.Println("Seeding Venues...")
	for _, v := range venues {
		_, err := db.Exec(`
			INSERT INTO locais (nome, endereco, cidade, capacidade)
			SELECT $1, $2, $3, $4
			WHERE NOT EXISTS (SELECT 1 FROM locais WHERE nome = $1);
		`, v.Name, v.Address, v.City, v.Capacity)
		if err != nil {
			log.Printf("Failed to seed venue %s: %v", v.Name, err)
		}
	}
}
