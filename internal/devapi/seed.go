package devapi

import "fieldmission/pkg/domain"

// Demo account credentials installed by Seed.
const (
	DemoCompany  = "company-demo"
	DemoLogin    = "demo"
	DemoPassword = "demo1234"
)

// Seed installs a demo account and a small fleet.
func (s *Server) Seed() error {
	err := s.AddUser(DemoLogin, DemoPassword, domain.User{
		ID:           "user-demo",
		FirstName:    "Camille",
		LastName:     "Martin",
		Role:         "agent",
		CompanyOwner: DemoCompany,
		CreatedAt:    "2025-01-15T08:00:00Z",
	})
	if err != nil {
		return err
	}
	s.AddDocuments(CollectionAsset,
		Document{"_id": "asset-1", "name": "Camion Mercedes Actros", "type": "Truck", "licensePlate": "AB-123-CD", "_company_owner": DemoCompany, "from_dt": "2025-03-01"},
		Document{"_id": "asset-2", "name": "Fourgon Renault Master", "type": "Van", "licensePlate": "EF-456-GH", "_company_owner": DemoCompany, "from_dt": "2025-04-01"},
		Document{"_id": "asset-3", "name": "Tracteur Volvo FH", "type": "Tractor", "licensePlate": "IJ-789-KL", "_company_owner": DemoCompany, "from_dt": "2025-02-01"},
		Document{"_id": "asset-4", "name": "Camionnette Ford Transit", "type": "Light Truck", "licensePlate": "MN-012-OP", "_company_owner": DemoCompany, "from_dt": "2025-05-01"},
	)
	s.AddDocuments(CollectionDriver,
		Document{"_id": "driver-1", "first_name": "Jean", "last_name": "Dupont", "email": "jean.dupont@email.com", "phone": "0123456789", "_company_owner": DemoCompany, "from_dt": "2025-01-10"},
		Document{"_id": "driver-2", "first_name": "Marie", "last_name": "Martin", "email": "marie.martin@email.com", "phone": "0987654321", "_company_owner": DemoCompany, "from_dt": "2025-02-10"},
		Document{"_id": "driver-3", "first_name": "Pierre", "last_name": "Durand", "email": "pierre.durand@email.com", "phone": "0147258369", "_company_owner": DemoCompany, "from_dt": "2025-03-10"},
		Document{"_id": "driver-4", "first_name": "Sophie", "last_name": "Bernard", "email": "sophie.bernard@email.com", "phone": "0369258147", "_company_owner": DemoCompany, "from_dt": "2025-04-10"},
	)
	s.AddDocuments(CollectionGeodata,
		geodata("bac-1", "Bac Place du Capitole", "Centre ville", 660, "2025-01-02", 1.4437, 43.6045),
		geodata("bac-2", "Bac Gare Matabiau", "Parvis nord", 340, "2025-02-02", 1.4536, 43.6110),
		geodata("bac-3", "Bac Jardin des Plantes", "Entrée sud", 240, "2025-03-02", 1.4510, 43.5930),
	)
	s.AddDocuments(CollectionForm,
		Document{"_id": "form-mission", "title": "Mission de livraison", "description": "Formulaire de mission de livraison.", "createdAt": "2025-05-01"},
		Document{"_id": "form-maintenance", "title": "Maintenance véhicule", "description": "Rapport de maintenance pour les véhicules de la flotte.", "createdAt": "2025-04-01"},
		Document{"_id": "form-incident", "title": "Incident routier", "description": "Signalement d'incidents survenus pendant les missions.", "createdAt": "2025-03-01"},
	)
	return nil
}

func geodata(id, name, description string, capacity float64, created string, lon, lat float64) Document {
	return Document{
		"_id":            id,
		"category":       "Point",
		"_company_owner": DemoCompany,
		"creation_dt":    created,
		"geometry":       map[string]any{"type": "Point", "coordinates": []any{lon, lat}},
		"properties":     map[string]any{"Nom": name, "Description": description, "capacity": capacity},
	}
}
