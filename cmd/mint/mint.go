// Command mint produces the two credentials the platform consumes but does
// not issue: student JWTs (normally minted by the account service) for
// local testing, and the bcrypt hash for OPERATOR_KEY_HASH.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/utils"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "student-token":
		studentToken(os.Args[2:])
	case "operator-hash":
		operatorHash(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: mint <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  student-token  - Sign a student JWT with the configured JWT_SECRET")
	fmt.Println("  operator-hash  - Print the bcrypt hash of an operator key for OPERATOR_KEY_HASH")
}

func studentToken(args []string) {
	fs := flag.NewFlagSet("student-token", flag.ExitOnError)
	studentID := fs.String("student", "", "student id to embed in the token")
	course := fs.String("course", "", "course the student is enrolled in")
	hours := fs.Int("ttl-hours", 24, "token lifetime in hours")
	fs.Parse(args)

	if *studentID == "" {
		log.Fatal("--student is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set; the API would reject this token")
	}

	token, err := utils.GenerateJWT(*studentID, *course, cfg.JWTSecret, time.Duration(*hours)*time.Hour)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}

func operatorHash(args []string) {
	fs := flag.NewFlagSet("operator-hash", flag.ExitOnError)
	key := fs.String("key", "", "plaintext operator key")
	fs.Parse(args)

	if *key == "" {
		log.Fatal("--key is required")
	}

	hash, err := utils.HashOperatorKey(*key)
	if err != nil {
		log.Fatalf("Failed to hash key: %v", err)
	}
	fmt.Println(hash)
}
