package eventtype

import "testing"

func TestSpecVersionStatusPredicates(t *testing.T) {
	current := &SpecVersion{Status: SpecVersionStatusCurrent}
	if !current.IsCurrent() || current.IsDeprecated() || current.IsFinalising() {
		t.Errorf("unexpected predicate results for current version: %+v", current)
	}

	deprecated := &SpecVersion{Status: SpecVersionStatusDeprecated}
	if !deprecated.IsDeprecated() || deprecated.IsCurrent() {
		t.Errorf("unexpected predicate results for deprecated version: %+v", deprecated)
	}

	finalising := &SpecVersion{Status: SpecVersionStatusFinalising}
	if !finalising.IsFinalising() || finalising.IsCurrent() {
		t.Errorf("unexpected predicate results for finalising version: %+v", finalising)
	}
}

func TestEventTypeCurrentArchivedPredicates(t *testing.T) {
	current := &EventType{Status: EventTypeStatusCurrent}
	if !current.IsCurrent() || current.IsArchived() {
		t.Error("expected current event type to report IsCurrent true, IsArchived false")
	}

	archived := &EventType{Status: EventTypeStatusArchived}
	if !archived.IsArchived() || archived.IsCurrent() {
		t.Error("expected archived event type to report IsArchived true, IsCurrent false")
	}
}

func TestEventTypeFindAndHasVersion(t *testing.T) {
	et := &EventType{SpecVersions: []SpecVersion{
		{Version: "1.0", Status: SpecVersionStatusDeprecated},
		{Version: "2.0", Status: SpecVersionStatusCurrent},
	}}

	if !et.HasVersion("1.0") || !et.HasVersion("2.0") {
		t.Error("expected both registered versions to be found")
	}
	if et.HasVersion("3.0") {
		t.Error("expected unregistered version to not be found")
	}

	found := et.FindSpecVersion("2.0")
	if found == nil || found.Status != SpecVersionStatusCurrent {
		t.Fatalf("expected to find version 2.0 as current, got %+v", found)
	}
}

func TestEventTypeGetCurrentVersion(t *testing.T) {
	et := &EventType{SpecVersions: []SpecVersion{
		{Version: "1.0", Status: SpecVersionStatusDeprecated},
	}}
	if et.GetCurrentVersion() != nil {
		t.Error("expected nil when no version is current")
	}

	et.SpecVersions = append(et.SpecVersions, SpecVersion{Version: "2.0", Status: SpecVersionStatusCurrent})
	current := et.GetCurrentVersion()
	if current == nil || current.Version != "2.0" {
		t.Fatalf("expected version 2.0 to be current, got %+v", current)
	}
}

func TestEventTypeAllVersionsDeprecated(t *testing.T) {
	empty := &EventType{}
	if empty.AllVersionsDeprecated() {
		t.Error("expected event type with no versions to not be all-deprecated")
	}

	mixed := &EventType{SpecVersions: []SpecVersion{
		{Version: "1.0", Status: SpecVersionStatusDeprecated},
		{Version: "2.0", Status: SpecVersionStatusCurrent},
	}}
	if mixed.AllVersionsDeprecated() {
		t.Error("expected mixed deprecated/current versions to not be all-deprecated")
	}

	allDeprecated := &EventType{SpecVersions: []SpecVersion{
		{Version: "1.0", Status: SpecVersionStatusDeprecated},
		{Version: "2.0", Status: SpecVersionStatusDeprecated},
	}}
	if !allDeprecated.AllVersionsDeprecated() {
		t.Error("expected all-deprecated versions to report true")
	}
}

func TestEventTypeAddSpecVersionAndWithStatusChaining(t *testing.T) {
	et := &EventType{Status: EventTypeStatusCurrent}

	result := et.AddSpecVersion(SpecVersion{Version: "1.0"}).WithStatus(EventTypeStatusArchived)

	if result != et {
		t.Error("expected chained calls to return the same instance")
	}
	if len(et.SpecVersions) != 1 || et.SpecVersions[0].Version != "1.0" {
		t.Fatalf("expected spec version 1.0 to be appended, got %+v", et.SpecVersions)
	}
	if et.Status != EventTypeStatusArchived {
		t.Errorf("expected status to be archived after WithStatus, got %s", et.Status)
	}
}
