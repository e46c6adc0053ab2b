// Package customers 按来电号码查询客户订单，用于丰富模型的系统提示词
package customers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// 表头列名
const (
	ColumnPhone    = "RA Tel"
	ColumnOrder    = "Bestellnummer"
	ColumnProduct  = "product_name"
	ColumnStatus   = "order_status"
	ColumnTracking = "shipping_tracking"
)

// matchDigits 按号码末尾若干位匹配
const matchDigits = 7

// notFound 字段缺失时的占位
const notFound = "nicht gefunden"

// ErrMissingPhoneColumn 表头中没有电话列
var ErrMissingPhoneColumn = errors.New("客户表缺少电话列")

// Record 一条客户订单
type Record struct {
	Phone    string
	Order    string
	Product  string
	Status   string
	Tracking string
}

// Instructions 将订单信息附加到系统提示词之后
func (r Record) Instructions(base string) string {
	info := fmt.Sprintf("Die Bestellnummer ist %s, Produkt: %s, Status: %s, Trackingnummer: %s.",
		orDefault(r.Order), orDefault(r.Product), orDefault(r.Status), orDefault(r.Tracking))
	if base == "" {
		return info
	}
	return base + "\n\n" + info
}

// Directory 内存中的客户表，加载后只读
type Directory struct {
	records []Record
}

// Load 从分号分隔的CSV文件加载客户表
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开客户表失败: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse 解析分号分隔的CSV内容
func Parse(r io.Reader) (*Directory, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取客户表表头失败: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if _, ok := index[ColumnPhone]; !ok {
		return nil, ErrMissingPhoneColumn
	}

	field := func(row []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	d := &Directory{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取客户表失败: %w", err)
		}
		d.records = append(d.records, Record{
			Phone:    field(row, ColumnPhone),
			Order:    field(row, ColumnOrder),
			Product:  field(row, ColumnProduct),
			Status:   field(row, ColumnStatus),
			Tracking: field(row, ColumnTracking),
		})
	}
	return d, nil
}

// Len 返回记录数
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Lookup 按号码末7位查找第一条匹配的记录
func (d *Directory) Lookup(phone string) (Record, bool) {
	if d == nil {
		return Record{}, false
	}
	suffix := digits(phone)
	if len(suffix) < matchDigits {
		return Record{}, false
	}
	suffix = suffix[len(suffix)-matchDigits:]

	for _, r := range d.records {
		if strings.Contains(digits(r.Phone), suffix) {
			return r, true
		}
	}
	return Record{}, false
}

func digits(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func orDefault(s string) string {
	if s == "" {
		return notFound
	}
	return s
}
