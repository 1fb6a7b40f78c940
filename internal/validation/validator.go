package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/catalog"
)

const studentIDMinLen = 4

// Options tunes the rules that depend on deployment.
type Options struct {
	// StudentDomain is the email domain student accounts must use.
	StudentDomain string
}

// New returns a configured validator with the custom tags and struct-level
// rules registered.
func New(opts Options) *validatorv10.Validate {
	v := validatorv10.New()

	// report json field names instead of Go ones
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("bd_phone", func(fl validatorv10.FieldLevel) bool {
		return accounts.ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("hhmm", func(fl validatorv10.FieldLevel) bool {
		return accounts.ValidHHMM(fl.Field().String())
	})
	_ = v.RegisterValidation("menu_category", func(fl validatorv10.FieldLevel) bool {
		return catalog.Category(fl.Field().String()).Valid()
	})

	domain := strings.ToLower(strings.TrimPrefix(opts.StudentDomain, "@"))
	v.RegisterStructValidation(registerStructValidation(domain), RegisterRequest{})

	return v
}

// registerStructValidation enforces the role-conditional registration fields.
func registerStructValidation(domain string) validatorv10.StructLevelFunc {
	return func(sl validatorv10.StructLevel) {
		req := sl.Current().Interface().(RegisterRequest)
		switch req.Role {
		case "student":
			if domain != "" && !strings.HasSuffix(strings.ToLower(strings.TrimSpace(req.Email)), "@"+domain) {
				sl.ReportError(req.Email, "email", "Email", "student_domain", domain)
			}
			if len(strings.TrimSpace(req.StudentID)) < studentIDMinLen {
				sl.ReportError(req.StudentID, "studentId", "StudentID", "student_id", "")
			}
		case "vendor":
			if req.VendorInfo == nil || len(strings.TrimSpace(req.VendorInfo.ShopName)) < 2 {
				sl.ReportError(req.VendorInfo, "vendorInfo.shopName", "VendorInfo", "shop_name", "")
			}
		}
	}
}
