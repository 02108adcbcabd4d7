// Package validator 替换 gin 默认校验器的错误信息，按配置语言输出可读的提示
package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"
	zhtrans "github.com/go-playground/validator/v10/translations/zh"
)

var (
	once  sync.Once
	trans atomic.Value // ut.Translator
)

// LazyInitGinValidator 只初始化一次；language 支持 en、zh，其他按 en 处理
func LazyInitGinValidator(language string) {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		// 错误信息里使用 json / form 字段名
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form", "uri"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale, zh.New())
		t, _ := uni.GetTranslator(language)

		var err error
		if strings.HasPrefix(strings.ToLower(language), "zh") {
			err = zhtrans.RegisterDefaultTranslations(v, t)
		} else {
			t, _ = uni.GetTranslator("en")
			err = entrans.RegisterDefaultTranslations(v, t)
		}
		if err != nil {
			return
		}
		trans.Store(t)
	})
}

// Translate 把校验错误翻译成一行提示，非校验错误原样返回
func Translate(err error) string {
	if err == nil {
		return ""
	}
	var errs validator.ValidationErrors
	t, ok := trans.Load().(ut.Translator)
	if !ok || !errors.As(err, &errs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Translate(t))
	}
	return strings.Join(msgs, "; ")
}
