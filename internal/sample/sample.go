// Package sample builds a small workbook holding the three required
// statements, for demos and tests.
package sample

import (
	"fmt"

	"github.com/klytics/creditkit/internal/formats/xlsx"
)

// Workbook returns a workbook with balance sheet, income statement and cash
// flow sheets (in that order) plus an unrelated notes sheet.
func Workbook() *xlsx.Workbook {
	return &xlsx.Workbook{
		Sheets: []xlsx.Sheet{
			{
				Name: "CDKT 2024",
				Rows: [][]string{
					{"Chỉ tiêu", "31/12/2024", "31/12/2023"},
					{"Tiền và các khoản tương đương tiền", "12500", "9800"},
					{"Phải thu ngắn hạn", "48200", "41000"},
					{"Hàng tồn kho", "63100", "52700"},
					{"Tổng tài sản ngắn hạn", "131600", "111200"},
					{"Tài sản cố định", "88400", "91300"},
					{"Tổng tài sản", "220000", "202500"},
					{"Nợ ngắn hạn", "97300", "80100"},
					{"Vay dài hạn", "41000", "45500"},
					{"Vốn chủ sở hữu", "81700", "76900"},
					{"Tổng nguồn vốn", "220000", "202500"},
				},
			},
			{
				Name: "KQHDKD 2024",
				Rows: [][]string{
					{"Chỉ tiêu", "2024", "2023"},
					{"Doanh thu thuần", "310500", "287400"},
					{"Giá vốn hàng bán", "262900", "238100"},
					{"Lợi nhuận gộp", "47600", "49300"},
					{"Chi phí lãi vay", "7900", "6100"},
					{"Lợi nhuận trước thuế", "9800", "14200"},
					{"Lợi nhuận sau thuế", "7840", "11360"},
				},
			},
			{
				Name: "BCLCTT 2024",
				Rows: [][]string{
					{"Chỉ tiêu", "2024", "2023"},
					{"Lưu chuyển tiền thuần từ hoạt động kinh doanh", "-4200", "8900"},
					{"Lưu chuyển tiền thuần từ hoạt động đầu tư", "-3100", "-12400"},
					{"Lưu chuyển tiền thuần từ hoạt động tài chính", "10000", "5200"},
					{"Tiền cuối kỳ", "12500", "9800"},
				},
			},
			{
				Name: "Notes",
				Rows: [][]string{
					{"Đơn vị tính: triệu đồng"},
				},
			},
		},
	}
}

// LongSheet returns a two-column sheet with n data rows under a header.
func LongSheet(name string, n int) xlsx.Sheet {
	rows := [][]string{{"Chỉ tiêu", "Giá trị"}}
	for i := 1; i <= n; i++ {
		rows = append(rows, []string{fmt.Sprintf("Dòng %d", i), fmt.Sprintf("%d", i*100)})
	}
	return xlsx.Sheet{Name: name, Rows: rows}
}

// WriteFile writes the sample workbook to path.
func WriteFile(path string) error {
	if err := xlsx.WriteFile(Workbook(), path); err != nil {
		return fmt.Errorf("could not write sample workbook: %w", err)
	}
	return nil
}
