package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/storefront/internal/storectl"
)

func main() {
	if err := storectl.Run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}
