package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/smarthotel/booking-wizard/internal/models"
	"github.com/smarthotel/booking-wizard/internal/services"
	"github.com/smarthotel/booking-wizard/pkg/hotelapi"
)

// Checks that the hotel API answers the availability query the wizard depends on
func main() {
	var baseURL, checkIn, checkOut string
	flag.StringVar(&baseURL, "hotel-api-url", "", "Hotel API base URL (overrides HOTEL_API_URL)")
	flag.StringVar(&checkIn, "check-in", "", "Check-in date YYYY-MM-DD (default tomorrow)")
	flag.StringVar(&checkOut, "check-out", "", "Check-out date YYYY-MM-DD (default check-in + 1)")
	flag.Parse()

	_ = godotenv.Load()

	if baseURL == "" {
		baseURL = os.Getenv("HOTEL_API_URL")
	}
	if baseURL == "" {
		log.Fatal("HOTEL_API_URL is not set and -hotel-api-url was not provided")
	}

	dates, err := probeDates(checkIn, checkOut)
	if err != nil {
		log.Fatalf("Invalid dates: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	client := hotelapi.NewClient(hotelapi.Config{
		BaseURL:          baseURL,
		AvailabilityPath: os.Getenv("AVAILABILITY_PATH"),
		Timeout:          15 * time.Second,
		UserAgent:        "booking-wizard/hotel-probe",
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	fmt.Printf("Availability for %s (%d nights)\n", dates, dates.Nights())
	offers, err := services.NewHotelAvailabilityProvider(client).ListAvailableRoomTypes(ctx, dates)
	if err != nil {
		log.Fatalf("Availability query failed: %v", err)
	}

	if len(offers) == 0 {
		fmt.Println("No room types available for these dates")
		return
	}

	fmt.Println("----------------------------------------------")
	for _, offer := range offers {
		fmt.Printf("%-8s %-24s cap %-2d  %8.2f/night  %d left\n",
			offer.ID, offer.Name, offer.MaxCapacity, offer.BasePrice, offer.AvailableQuantity)
	}
	fmt.Println("----------------------------------------------")
}

func probeDates(checkIn, checkOut string) (models.DateRange, error) {
	today := models.Today(time.Now(), time.Local)

	in := today.AddDays(1)
	if checkIn != "" {
		parsed, err := civil.ParseDate(checkIn)
		if err != nil {
			return models.DateRange{}, err
		}
		in = parsed
	}

	out := in.AddDays(1)
	if checkOut != "" {
		parsed, err := civil.ParseDate(checkOut)
		if err != nil {
			return models.DateRange{}, err
		}
		out = parsed
	}

	return models.NewDateRange(in, out, today)
}
