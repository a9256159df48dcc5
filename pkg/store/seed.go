package store

import (
	"time"

	"civicfix/pkg/models"
	"civicfix/pkg/security"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// SeedComplaints is the dataset every fresh in-memory store starts from, newest first.
func SeedComplaints() []models.Complaint {
	return []models.Complaint{
		{
			ID:          1,
			Title:       "Pothole on Main Street",
			Description: "Large pothole causing traffic issues and potential damage to vehicles",
			Category:    models.CategoryRoads,
			Status:      models.StatusPending,
			Priority:    models.PriorityHigh,
			Location: models.Location{
				Address:     "123 Main Street, Downtown",
				Coordinates: &models.Coordinates{Lat: 40.7128, Lng: -74.0060},
			},
			Images: []string{
				"https://images.unsplash.com/photo-1545454675-3531b543be5d?w=400&h=300&fit=crop",
				"https://images.unsplash.com/photo-1545454675-3531b543be5d?w=400&h=300&fit=crop",
			},
			ReportedBy: models.Reporter{ID: 1, Name: "John Doe", Email: "john@example.com"},
			Comments: []models.Comment{
				{ID: 1, Text: "This has been reported multiple times", Author: "John Doe", Timestamp: mustTime("2024-01-15T10:30:00Z")},
			},
			ReportedAt: mustTime("2024-01-15T10:30:00Z"),
			UpdatedAt:  mustTime("2024-01-15T10:30:00Z"),
		},
		{
			ID:          2,
			Title:       "Broken Street Light",
			Description: "Street light not working for the past week, making the area unsafe at night",
			Category:    models.CategoryStreetLights,
			Status:      models.StatusInProgress,
			Priority:    models.PriorityMedium,
			Location: models.Location{
				Address:     "456 Oak Avenue, Westside",
				Coordinates: &models.Coordinates{Lat: 40.7589, Lng: -73.9851},
			},
			Images: []string{
				"https://images.unsplash.com/photo-1518709268805-4e9042af2176?w=400&h=300&fit=crop",
			},
			ReportedBy: models.Reporter{ID: 2, Name: "Jane Smith", Email: "jane@example.com"},
			AssignedTo: &models.Assignee{ID: 3, Name: "City Maintenance Team", Department: "Public Works"},
			Comments: []models.Comment{
				{ID: 2, Text: "Work order has been created", Author: "City Maintenance Team", Timestamp: mustTime("2024-01-16T09:15:00Z")},
			},
			ReportedAt: mustTime("2024-01-14T15:45:00Z"),
			UpdatedAt:  mustTime("2024-01-16T09:15:00Z"),
		},
		{
			ID:          3,
			Title:       "Garbage Collection Issue",
			Description: "Garbage not being collected regularly in the neighborhood",
			Category:    models.CategorySanitation,
			Status:      models.StatusResolved,
			Priority:    models.PriorityLow,
			Location: models.Location{
				Address:     "789 Pine Street, Eastside",
				Coordinates: &models.Coordinates{Lat: 40.7505, Lng: -73.9934},
			},
			Images:     []string{},
			ReportedBy: models.Reporter{ID: 1, Name: "John Doe", Email: "john@example.com"},
			AssignedTo: &models.Assignee{ID: 4, Name: "Sanitation Department", Department: "Public Works"},
			Comments: []models.Comment{
				{ID: 3, Text: "Issue has been resolved. New schedule implemented.", Author: "Sanitation Department", Timestamp: mustTime("2024-01-13T14:30:00Z")},
			},
			ReportedAt: mustTime("2024-01-10T08:20:00Z"),
			UpdatedAt:  mustTime("2024-01-13T14:30:00Z"),
		},
	}
}

type seedUser struct {
	user     models.User
	password string
}

var seedUsers = []seedUser{
	{
		user: models.User{
			ID:     1,
			Email:  "user@example.com",
			Name:   "John Doe",
			Role:   models.RoleUser,
			Avatar: "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e?w=150&h=150&fit=crop&crop=face",
		},
		password: "password123",
	},
	{
		user: models.User{
			ID:     2,
			Email:  "admin@example.com",
			Name:   "Admin User",
			Role:   models.RoleAdmin,
			Avatar: "https://images.unsplash.com/photo-1507003211169-0a1dd7228f2d?w=150&h=150&fit=crop&crop=face",
		},
		password: "admin123",
	},
}

// SeedUsers returns the demo accounts with hashed passwords.
func SeedUsers() ([]models.User, error) {
	out := make([]models.User, 0, len(seedUsers))
	for _, s := range seedUsers {
		hash, err := security.HashPassword(s.password)
		if err != nil {
			return nil, err
		}
		u := s.user
		u.PasswordHash = hash
		out = append(out, u)
	}
	return out, nil
}
