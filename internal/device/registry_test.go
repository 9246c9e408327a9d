package device_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/auricle/internal/device"
)

func testDevices() []device.Device {
	return []device.Device{
		{
			ID:      "light.office_desk",
			Name:    "desk lamp",
			Kind:    device.KindLight,
			Aliases: []string{"the lamp", "office lamp"},
			Area:    "office",
		},
		{
			ID:   "Downlights Office",
			Name: "office lights",
			Kind: device.KindGroup,
			Area: "office",
		},
		{
			ID:      "climate.living_room",
			Name:    "thermostat",
			Kind:    device.KindClimate,
			Aliases: []string{"the heating"},
			Area:    "living room",
		},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	t.Run("valid devices", func(t *testing.T) {
		t.Parallel()
		r, err := device.NewRegistry(testDevices())
		if err != nil {
			t.Fatalf("NewRegistry: unexpected error: %v", err)
		}
		if r.Len() != 3 {
			t.Fatalf("Len: expected 3, got %d", r.Len())
		}
	})

	t.Run("empty set", func(t *testing.T) {
		t.Parallel()
		r, err := device.NewRegistry(nil)
		if err != nil {
			t.Fatalf("NewRegistry: unexpected error: %v", err)
		}
		if r.Len() != 0 {
			t.Fatalf("Len: expected 0, got %d", r.Len())
		}
	})

	t.Run("duplicate ID returns ErrDuplicateID", func(t *testing.T) {
		t.Parallel()
		_, err := device.NewRegistry([]device.Device{
			{ID: "light.a", Name: "first"},
			{ID: "light.a", Name: "second"},
		})
		if !errors.Is(err, device.ErrDuplicateID) {
			t.Fatalf("NewRegistry: expected ErrDuplicateID, got %v", err)
		}
	})

	t.Run("invalid device is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := device.NewRegistry([]device.Device{
			{ID: "light.a", Name: "lamp", Kind: "spaceship"},
		})
		if err == nil {
			t.Fatal("NewRegistry: expected error for unknown kind, got nil")
		}
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		dev     device.Device
		wantErr bool
	}{
		{"valid", device.Device{ID: "light.a", Name: "lamp", Kind: device.KindLight}, false},
		{"valid without kind", device.Device{ID: "light.a", Name: "lamp"}, false},
		{"missing id", device.Device{Name: "lamp"}, true},
		{"missing name", device.Device{ID: "light.a"}, true},
		{"unknown kind", device.Device{ID: "light.a", Name: "lamp", Kind: "blender"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := device.Validate(tc.dev)
			if tc.wantErr && err == nil {
				t.Fatal("Validate: expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate: unexpected error: %v", err)
			}
		})
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	r, err := device.NewRegistry(testDevices())
	if err != nil {
		t.Fatalf("NewRegistry: unexpected error: %v", err)
	}

	t.Run("existing id", func(t *testing.T) {
		t.Parallel()
		d, err := r.Get("light.office_desk")
		if err != nil {
			t.Fatalf("Get: unexpected error: %v", err)
		}
		if d.Name != "desk lamp" {
			t.Fatalf("Get: expected name %q, got %q", "desk lamp", d.Name)
		}
	})

	t.Run("unknown id returns ErrNotFound", func(t *testing.T) {
		t.Parallel()
		_, err := r.Get("light.nonexistent")
		if !errors.Is(err, device.ErrNotFound) {
			t.Fatalf("Get: expected ErrNotFound, got %v", err)
		}
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	r, err := device.NewRegistry(testDevices())
	if err != nil {
		t.Fatalf("NewRegistry: unexpected error: %v", err)
	}

	t.Run("canonical name", func(t *testing.T) {
		t.Parallel()
		d, ok := r.Resolve("desk lamp")
		if !ok {
			t.Fatal("Resolve: expected match for canonical name")
		}
		if d.ID != "light.office_desk" {
			t.Fatalf("Resolve: expected ID %q, got %q", "light.office_desk", d.ID)
		}
	})

	t.Run("alias", func(t *testing.T) {
		t.Parallel()
		d, ok := r.Resolve("the heating")
		if !ok {
			t.Fatal("Resolve: expected match for alias")
		}
		if d.ID != "climate.living_room" {
			t.Fatalf("Resolve: expected ID %q, got %q", "climate.living_room", d.ID)
		}
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		t.Parallel()
		d, ok := r.Resolve("  Desk   LAMP ")
		if !ok {
			t.Fatal("Resolve: expected match despite case and spacing")
		}
		if d.ID != "light.office_desk" {
			t.Fatalf("Resolve: expected ID %q, got %q", "light.office_desk", d.ID)
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		t.Parallel()
		if _, ok := r.Resolve("disco ball"); ok {
			t.Fatal("Resolve: expected no match for unknown name")
		}
	})

	t.Run("canonical name beats another device's alias", func(t *testing.T) {
		t.Parallel()
		reg, err := device.NewRegistry([]device.Device{
			{ID: "light.a", Name: "reading light", Aliases: []string{"bedroom light"}},
			{ID: "light.b", Name: "bedroom light"},
		})
		if err != nil {
			t.Fatalf("NewRegistry: unexpected error: %v", err)
		}
		d, ok := reg.Resolve("bedroom light")
		if !ok {
			t.Fatal("Resolve: expected match")
		}
		if d.ID != "light.b" {
			t.Fatalf("Resolve: expected canonical owner %q, got %q", "light.b", d.ID)
		}
	})
}

func TestResolveID(t *testing.T) {
	t.Parallel()

	r, err := device.NewRegistry(testDevices())
	if err != nil {
		t.Fatalf("NewRegistry: unexpected error: %v", err)
	}

	id, ok := r.ResolveID("office lights")
	if !ok {
		t.Fatal("ResolveID: expected match")
	}
	if id != "Downlights Office" {
		t.Fatalf("ResolveID: expected %q, got %q", "Downlights Office", id)
	}

	if _, ok := r.ResolveID("disco ball"); ok {
		t.Fatal("ResolveID: expected no match for unknown name")
	}
}

func TestReplace(t *testing.T) {
	t.Parallel()

	t.Run("swaps contents", func(t *testing.T) {
		t.Parallel()
		r, err := device.NewRegistry(testDevices())
		if err != nil {
			t.Fatalf("NewRegistry: unexpected error: %v", err)
		}

		err = r.Replace([]device.Device{
			{ID: "lock.front_door", Name: "front door", Kind: device.KindLock},
		})
		if err != nil {
			t.Fatalf("Replace: unexpected error: %v", err)
		}

		if _, ok := r.Resolve("desk lamp"); ok {
			t.Fatal("Resolve: old device should be gone after Replace")
		}
		if _, ok := r.Resolve("front door"); !ok {
			t.Fatal("Resolve: new device should be present after Replace")
		}
		if r.Len() != 1 {
			t.Fatalf("Len: expected 1, got %d", r.Len())
		}
	})

	t.Run("error keeps old contents", func(t *testing.T) {
		t.Parallel()
		r, err := device.NewRegistry(testDevices())
		if err != nil {
			t.Fatalf("NewRegistry: unexpected error: %v", err)
		}

		err = r.Replace([]device.Device{
			{ID: "dup", Name: "one"},
			{ID: "dup", Name: "two"},
		})
		if !errors.Is(err, device.ErrDuplicateID) {
			t.Fatalf("Replace: expected ErrDuplicateID, got %v", err)
		}

		if _, ok := r.Resolve("desk lamp"); !ok {
			t.Fatal("Resolve: old devices should survive a failed Replace")
		}
		if r.Len() != 3 {
			t.Fatalf("Len: expected 3 after failed Replace, got %d", r.Len())
		}
	})
}

func TestList(t *testing.T) {
	t.Parallel()

	r, err := device.NewRegistry(testDevices())
	if err != nil {
		t.Fatalf("NewRegistry: unexpected error: %v", err)
	}

	t.Run("all devices sorted by name", func(t *testing.T) {
		t.Parallel()
		all := r.List(device.ListOptions{})
		if len(all) != 3 {
			t.Fatalf("List: expected 3 devices, got %d", len(all))
		}
		want := []string{"desk lamp", "office lights", "thermostat"}
		for i, d := range all {
			if d.Name != want[i] {
				t.Fatalf("List: expected %q at index %d, got %q", want[i], i, d.Name)
			}
		}
	})

	t.Run("filter by kind", func(t *testing.T) {
		t.Parallel()
		lights := r.List(device.ListOptions{Kind: device.KindLight})
		if len(lights) != 1 {
			t.Fatalf("List: expected 1 light, got %d", len(lights))
		}
		if lights[0].ID != "light.office_desk" {
			t.Fatalf("List: expected %q, got %q", "light.office_desk", lights[0].ID)
		}
	})

	t.Run("filter by area ignores case", func(t *testing.T) {
		t.Parallel()
		office := r.List(device.ListOptions{Area: "Office"})
		if len(office) != 2 {
			t.Fatalf("List: expected 2 office devices, got %d", len(office))
		}
	})

	t.Run("kind and area combined", func(t *testing.T) {
		t.Parallel()
		got := r.List(device.ListOptions{Kind: device.KindGroup, Area: "office"})
		if len(got) != 1 {
			t.Fatalf("List: expected 1 device, got %d", len(got))
		}
	})
}

func TestNames(t *testing.T) {
	t.Parallel()

	r, err := device.NewRegistry(testDevices())
	if err != nil {
		t.Fatalf("NewRegistry: unexpected error: %v", err)
	}

	names := r.Names()
	want := []string{"desk lamp", "office lamp", "office lights", "the heating", "the lamp", "thermostat"}
	if len(names) != len(want) {
		t.Fatalf("Names: expected %d names, got %d (%v)", len(want), len(names), names)
	}
	for i, n := range names {
		if n != want[i] {
			t.Fatalf("Names: expected %q at index %d, got %q", want[i], i, n)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	const goroutines = 50

	r, err := device.NewRegistry(testDevices())
	if err != nil {
		t.Fatalf("NewRegistry: unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, _ = r.Resolve("desk lamp")
			_, _ = r.Get("light.office_desk")
			_ = r.List(device.ListOptions{Kind: device.KindLight})
			_ = r.Names()
			_ = r.Replace(testDevices())
		}()
	}

	wg.Wait()

	if r.Len() != 3 {
		t.Fatalf("Len: expected 3 after concurrent access, got %d", r.Len())
	}
}
