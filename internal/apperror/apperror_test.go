package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategories(t *testing.T) {
	cases := map[string]struct {
		err  error
		want error
		not  []error
	}{
		"household not found": {
			err:  NotFound("household", "100"),
			want: ErrNotFound,
			not:  []error{ErrValidation, ErrConnectivity},
		},
		"bad household number": {
			err:  ValidationFailed("hshdNum", "household number must be an integer"),
			want: ErrValidation,
			not:  []error{ErrNotFound},
		},
		"duplicate username": {
			err:  Conflict("user", "alice"),
			want: ErrConflict,
		},
		"failed login": {
			err:  Unauthorized("invalid username or password"),
			want: ErrUnauthorized,
			not:  []error{ErrForbidden},
		},
		"store down": {
			err:  Connectivity("relational store", errors.New("dial tcp: refused")),
			want: ErrConnectivity,
			not:  []error{ErrValidation},
		},
		// service layers wrap with %w; the category must survive
		"wrapped twice": {
			err:  fmt.Errorf("ingest: %w", fmt.Errorf("staging: %w", Connectivity("blob storage", nil))),
			want: ErrConnectivity,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.want) {
				t.Errorf("errors.Is(%v, %v) = false", tc.err, tc.want)
			}
			for _, other := range tc.not {
				if errors.Is(tc.err, other) {
					t.Errorf("errors.Is(%v, %v) = true", tc.err, other)
				}
			}
		})
	}
}

func TestMessages(t *testing.T) {
	cases := []struct {
		err  *AppError
		want string
	}{
		{NotFound("blob", "400_products.csv"), "blob not found with id 400_products.csv"},
		{Conflict("user", "alice"), "user conflict with id alice"},
		{Connectivity("blob storage", errors.New("timeout")), "blob storage unavailable: timeout"},
		{Connectivity("relational store", nil), "relational store unavailable"},
		{ValidationFailed("households", "households file is required"), "households file is required"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestConnectivity_Cause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Connectivity("relational store", cause)

	if !errors.Is(err, cause) {
		t.Error("cause is not reachable through errors.Is")
	}

	var appErr *AppError
	if !errors.As(fmt.Errorf("wrap: %w", err), &appErr) {
		t.Fatal("errors.As did not find *AppError")
	}
	if appErr.Cause != cause {
		t.Errorf("Cause = %v, want %v", appErr.Cause, cause)
	}
	if got := len(appErr.Unwrap()); got != 2 {
		t.Errorf("len(Unwrap()) = %d, want 2", got)
	}
	if got := len(NotFound("household", "1").Unwrap()); got != 1 {
		t.Errorf("len(Unwrap()) without cause = %d, want 1", got)
	}
}

func TestValidationFailed_Field(t *testing.T) {
	err := ValidationFailed("transactions", "transactions.csv is missing column HSHD_NUM")
	if err.Field != "transactions" {
		t.Errorf("Field = %q, want transactions", err.Field)
	}
}
