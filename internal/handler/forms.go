package handler

import (
	"errors"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// フォーム検証メッセージ。
const (
	MsgPasswordMismatch  = "New passwords do not match"
	MsgPasswordTooShort  = "Password must be at least 8 characters long"
	MsgPasswordUnchanged = "New password must be different from the current password"
	MsgInvalidAmount     = "Enter a valid amount"
	MsgNegativeRate      = "Interest rate cannot be negative"
	MsgInvalidDate       = "Enter a valid date"
	MsgInvalidEmail      = "Enter a valid email address"
	MsgIDNumberRequired  = "Enter the customer's ID number"
	MsgInvalidInput      = "Invalid input"
)

// fieldLabels はJSONフィールド名から画面表示用のラベルへの対応。
var fieldLabels = map[string]string{
	"name":         "Name",
	"id_number":    "ID number",
	"phone":        "Phone number",
	"email":        "Email",
	"start_date":   "Start date",
	"due_date":     "Due date",
	"guarantor":    "Guarantor",
	"old_password": "Current password",
	"new_password": "New password",
}

// formValidator はモデルのvalidateタグで入力を検証する。
// 検証に失敗した入力はAPIへ送信しない。
type formValidator struct {
	v *validator.Validate
}

func newFormValidator() *formValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &formValidator{v: v}
}

// Validate はsを検証し、最初の違反を画面表示用のメッセージで返す。
func (f *formValidator) Validate(s any) error {
	err := f.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.New(MsgInvalidInput)
	}
	return errors.New(validationMessage(verrs[0]))
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "gt":
		return MsgInvalidAmount
	case "gte":
		if field == "interest_rate" {
			return MsgNegativeRate
		}
		return MsgInvalidAmount
	case "min":
		if field == "new_password" {
			return MsgPasswordTooShort
		}
	case "nefield":
		return MsgPasswordUnchanged
	case "datetime":
		return MsgInvalidDate
	case "email":
		return MsgInvalidEmail
	case "required":
		if field == "guarantor" {
			return "Guarantor details are required"
		}
		return labelOf(field) + " is required"
	}
	return labelOf(field) + " is invalid"
}

func labelOf(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	if field == "" {
		return "Field"
	}
	return strings.ToUpper(field[:1]) + strings.ReplaceAll(field[1:], "_", " ")
}

// formValue はフォーム値を前後の空白を除いて返す。
func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}

// parseAmount は金額の入力を解析する。空や数値以外は不正とする。
func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
