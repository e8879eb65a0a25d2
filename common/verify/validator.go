package verify

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	zhtranslations "github.com/go-playground/validator/v10/translations/zh"
)

const (
	LocaleZH = "zh"
	LocaleEN = "en"
)

// ValidatorInstance 校验器及其翻译器
type ValidatorInstance struct {
	Validate   *validator.Validate
	Translator ut.Translator
}

// InitValidator 按语言初始化校验器，错误信息使用 json 字段名
func InitValidator(locale string) (*ValidatorInstance, error) {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	uni := ut.New(en.New(), zh.New(), en.New())
	trans, ok := uni.GetTranslator(locale)
	if !ok {
		return nil, fmt.Errorf("不支持的语言: %s", locale)
	}

	var err error
	switch locale {
	case LocaleEN:
		err = entranslations.RegisterDefaultTranslations(validate, trans)
	default:
		err = zhtranslations.RegisterDefaultTranslations(validate, trans)
	}
	if err != nil {
		return nil, fmt.Errorf("注册翻译器失败: %w", err)
	}

	return &ValidatorInstance{
		Validate:   validate,
		Translator: trans,
	}, nil
}

// RemoveTopSaStr 翻译校验错误并去掉顶层结构体名前缀
func RemoveTopSaStr(errs validator.ValidationErrors, trans ut.Translator) string {
	fields := errs.Translate(trans)
	msgs := make([]string, 0, len(fields))
	for _, msg := range fields {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
