package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CategoryFood       Category = "Alimentação"
	CategoryTransport  Category = "Transporte"
	CategoryFixedCost  Category = "Custo Fixo"
	CategoryHealth     Category = "Saúde"
	CategoryEducation  Category = "Educação"
	CategoryLeisure    Category = "Lazer"
	CategoryRestaurant Category = "Restaurante"
	CategoryOther      Category = "Outros"
)

const (
	SavingSalary        SavingType = "Salário"
	SavingBonus         SavingType = "Bônus"
	SavingExtra         SavingType = "Extra"
	SavingThirteenth    SavingType = "Décimo Terceiro"
	SavingStatutoryFund SavingType = "FGTS"
)

type (
	Category   string
	SavingType string

	// Expense is a single spending record owned by a user's ledger.
	Expense struct {
		ID            int64
		Establishment string
		Category      Category
		Value         Money
		Date          Date
	}

	// SavingsEntry is a monthly income record (salary, bonus, ...).
	SavingsEntry struct {
		ID    int64
		Type  SavingType
		Value Money
		Date  Date
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyEstablishment = errors.New("empty establishment")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidSavingType  = errors.New("invalid saving type")
	ErrNotFound           = errors.New("record not found")
)

// Categories lists the valid expense categories in display order.
func Categories() []Category {
	return []Category{
		CategoryFood, CategoryTransport, CategoryFixedCost, CategoryHealth,
		CategoryEducation, CategoryLeisure, CategoryRestaurant, CategoryOther,
	}
}

// SavingTypes lists the valid savings entry types in display order.
func SavingTypes() []SavingType {
	return []SavingType{
		SavingSalary, SavingBonus, SavingExtra, SavingThirteenth, SavingStatutoryFund,
	}
}

func (c Category) Validate() error {
	for _, v := range Categories() {
		if c == v {
			return nil
		}
	}
	return ErrInvalidCategory
}

func (t SavingType) Validate() error {
	for _, v := range SavingTypes() {
		if t == v {
			return nil
		}
	}
	return ErrInvalidSavingType
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Establishment)) == 0 {
		return ErrEmptyEstablishment
	}
	if len(e.Establishment) > 200 {
		return errors.New("establishment too long (max 200 characters)")
	}
	if err := e.Value.Validate(); err != nil {
		return err
	}
	return e.Category.Validate()
}

// Confirmation returns the user-facing message for a recorded expense.
func (e Expense) Confirmation() string {
	return fmt.Sprintf("Despesa adicionada: %s - R$%s", e.Establishment, e.Value.Decimal())
}

// UpdateConfirmation returns the user-facing message for an edited expense.
func (e Expense) UpdateConfirmation() string {
	return fmt.Sprintf("Despesa atualizada: %s - R$%s", e.Establishment, e.Value.Decimal())
}

func (s SavingsEntry) Validate() error {
	if err := s.Date.Validate(); err != nil {
		return err
	}
	if err := s.Value.Validate(); err != nil {
		return err
	}
	return s.Type.Validate()
}

// Confirmation returns the user-facing message for a recorded savings entry.
func (s SavingsEntry) Confirmation() string {
	return fmt.Sprintf("Economia mensal adicionada: R$%s para %s", s.Value.Decimal(), s.Date)
}

// UpdateConfirmation returns the user-facing message for an edited savings entry.
func (s SavingsEntry) UpdateConfirmation() string {
	return fmt.Sprintf("Economia mensal atualizada: R$%s para %s", s.Value.Decimal(), s.Date)
}
