package main

import (
	"fmt"
	"log"

	"github.com/dukerupert/pocketkid/internal/push"
)

func main() {
	publicKey, privateKey, err := push.GenerateVAPIDKeys()
	if err != nil {
		log.Fatalf("generate VAPID keys: %v", err)
	}

	fmt.Println("Add these to the server environment:")
	fmt.Printf("VAPID_PUBLIC_KEY=%s\n", publicKey)
	fmt.Printf("VAPID_PRIVATE_KEY=%s\n", privateKey)
	fmt.Println("VAPID_SUBJECT=mailto:admin@example.com")
}
