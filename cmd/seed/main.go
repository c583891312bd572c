package main

import (
	"log"

	"github.com/civicseva/backend/internal/database"
	"github.com/civicseva/backend/internal/models"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type seedUser struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Role       models.UserRole
	Department string
}

// One admin plus one officer per major department, enough to exercise
// assignment and escalation flows on a fresh database.
var seedUsers = []seedUser{
	{"admin@civicseva.gov.in", "admin123", "Portal", "Admin", models.RoleAdmin, ""},
	{"officer.water@civicseva.gov.in", "officer123", "Ravi", "Kumar", models.RoleOfficer, "Water Works Department"},
	{"officer.power@civicseva.gov.in", "officer123", "Meena", "Sharma", models.RoleOfficer, "Electricity Board"},
	{"officer.roads@civicseva.gov.in", "officer123", "Arjun", "Patel", models.RoleOfficer, "Public Works Department"},
	{"officer.sanitation@civicseva.gov.in", "officer123", "Lakshmi", "Iyer", models.RoleOfficer, "Sanitation Department"},
	{"officer.general@civicseva.gov.in", "officer123", "Suresh", "Reddy", models.RoleOfficer, models.DefaultDepartment},
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Connect to database
	database.Connect()

	// Run migrations first
	log.Println("Running database migrations...")
	database.AutoMigrate()

	log.Println("Seeding database with initial accounts...")

	for _, s := range seedUsers {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(s.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("Error hashing password for %s: %v", s.Email, err)
			continue
		}

		user := models.User{
			Email:     s.Email,
			Password:  string(hashedPassword),
			FirstName: s.FirstName,
			LastName:  s.LastName,
			Role:      s.Role,
		}
		if s.Department != "" {
			dept := s.Department
			user.Department = &dept
		}

		// Check if user already exists
		var existingUser models.User
		if err := database.DB.Where("email = ?", user.Email).First(&existingUser).Error; err != nil {
			if err := database.DB.Create(&user).Error; err != nil {
				log.Printf("Error creating user %s: %v", user.Email, err)
			} else {
				log.Printf("✅ Created user: %s (%s)", user.Email, user.Role)
			}
		} else {
			log.Printf("⚠️  User already exists: %s", user.Email)
		}
	}

	log.Println("✅ Database seeding completed successfully!")
}
