package console

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/wfunc/bms-stand/internal/archive"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/results"
	"github.com/wfunc/bms-stand/internal/service"
	"github.com/wfunc/bms-stand/internal/stand"
	"go.uber.org/zap"
)

// Run 主菜单循环，输入关闭或选择退出时返回 nil
func (c *Console) Run(ctx context.Context) error {
	if c.user == nil {
		if _, err := c.Login(ctx); err != nil {
			return exitErr(err)
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		c.menu()
		choice, err := c.prompt(">")
		if err != nil {
			return exitErr(err)
		}

		switch choice {
		case "1":
			err = c.showStatus(ctx)
		case "2":
			err = c.resetResults(ctx)
		case "3":
			err = c.saveReport(ctx)
		case "4":
			err = c.browseArchive(ctx)
		case "5":
			_, err = c.Login(ctx)
		case "6":
			if !c.user.IsAdmin() {
				c.println("Недостаточно прав.")
				continue
			}
			err = c.settings(ctx)
		case "0", "q":
			return nil
		default:
			c.println("Неизвестная команда.")
			continue
		}

		if err == nil {
			continue
		}
		if errors.Is(err, errors.ErrLoginLockout) || errors.Is(err, errors.ErrCanceled) {
			return exitErr(err)
		}
		c.showError(err)
	}
}

// exitErr 输入关闭视为正常退出
func exitErr(err error) error {
	if errors.Is(err, errors.ErrCanceled) {
		return nil
	}
	return err
}

func (c *Console) menu() {
	c.println()
	c.printf("=== %s ===\n", c.title)
	c.printf("Пользователь: %s\n", c.user.FullName())
	c.println("1. Испытания")
	c.println("2. Сбросить результаты")
	c.println("3. Сохранить результаты")
	c.println("4. Отчетность")
	c.println("5. Сменить пользователя")
	if c.user.IsAdmin() {
		c.println("6. Настройки")
	}
	c.println("0. Выход")
}

// showStatus 显示结果矩阵
func (c *Console) showStatus(ctx context.Context) error {
	st, err := c.stand.Status(ctx)
	if err != nil {
		return err
	}
	c.printf("Статус: %s\n", st.Text)
	if st.Connected {
		c.printf("Устройство подключено (%s)\n", st.Mode)
	} else {
		c.println("Устройство не подключено")
		if st.DeviceError != "" {
			c.printf("Причина: %s\n", st.DeviceError)
		}
	}

	c.println()
	c.println("Результаты испытаний по каналам:")
	for j, h := range results.ConditionHeaders {
		c.printf("  [%d] %s\n", j+1, h)
	}
	c.println("         [1] [2] [3] [4]")
	for i := range st.Cells {
		c.printf("Канал %d ", i+1)
		for _, cell := range st.Cells[i] {
			if cell == "" {
				cell = " "
			}
			c.printf("  %s ", cell)
		}
		c.println()
	}

	if st.Verdict != nil {
		c.printf("Результат по КЗ: %s\n", st.VerdictText)
	} else {
		c.println("Результат по КЗ: ...")
	}
	if st.Negative != nil {
		if *st.Negative {
			c.println("Итог: отрицательный")
		} else {
			c.println("Итог: положительный")
		}
	}
	if st.LastRun != nil {
		c.printf("Время устройства: %s, длительность: %.3f с\n", st.LastRun.DeviceTime, st.LastRun.Duration)
	}
	return nil
}

// resetResults 确认后清空结果
func (c *Console) resetResults(ctx context.Context) error {
	ok, err := c.confirm("Вы уверены, что хотите сбросить результаты?")
	if err != nil || !ok {
		return err
	}
	if err := c.stand.Reset(ctx); err != nil {
		return err
	}
	c.println(stand.StatusWaiting)
	return nil
}

// saveReport 生成协议后询问是否清空结果
func (c *Console) saveReport(ctx context.Context) error {
	systemName, err := c.prompt("Введите название системы контроля:")
	if err != nil {
		return err
	}
	if systemName == "" {
		c.println("Название системы контроля обязательно.")
		return nil
	}
	serial, err := c.prompt("Введите заводской номер:")
	if err != nil {
		return err
	}
	if serial == "" {
		c.println("Заводской номер обязателен.")
		return nil
	}

	art, err := c.stand.GenerateReport(ctx, systemName, serial)
	if err != nil {
		if errors.Is(err, errors.ErrNoResults) {
			c.println("Нет результатов испытаний для сохранения.")
			return nil
		}
		return err
	}
	c.printf("Протокол сохранен: %s\n", art.Path)
	c.printf("SHA-256: %s\n", art.Digest)
	c.logger.Info("协议已保存", zap.String("path", art.Path))

	return c.resetResults(ctx)
}

// browseArchive 按出厂编号与日期检索协议，并可校验完整性
func (c *Console) browseArchive(ctx context.Context) error {
	serial, err := c.prompt("Поиск по заводскому номеру (Enter - все):")
	if err != nil {
		return err
	}
	rawDate, err := c.prompt("Дата ДД.ММ.ГГГГ (Enter - все):")
	if err != nil {
		return err
	}
	date, err := dateFilter(rawDate)
	if err != nil {
		return err
	}

	names, err := c.archive.List(serial, date)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		c.println("Отчеты не найдены.")
		return nil
	}
	c.println("Сохраненные отчеты:")
	for i, name := range names {
		c.printf("  %d. %s\n", i+1, name)
	}

	choice, err := c.prompt("Номер отчета для проверки целостности (Enter - назад):")
	if err != nil || choice == "" {
		return err
	}
	n, convErr := strconv.Atoi(choice)
	if convErr != nil || n < 1 || n > len(names) {
		c.println("Неверный номер.")
		return nil
	}

	v, err := c.archive.Verify(ctx, names[n-1])
	if err != nil && !errors.Is(err, errors.ErrDataIntegrity) {
		return err
	}
	if v.Valid {
		c.printf("Целостность подтверждена (%s): %s\n", v.Source, v.Actual)
	} else {
		c.printf("ВНИМАНИЕ: хеш не совпадает. Ожидалось %s, получено %s\n", v.Expected, v.Actual)
	}
	return nil
}

// dateFilter 把 ДД.ММ.ГГГГ 或 ГГГГММДД 转为文件名中的日期标记
func dateFilter(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	for _, layout := range []string{"02.01.2006", "20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return archive.DateToken(t), nil
		}
	}
	return "", errors.Newf(errors.ErrInvalidParam, "неверная дата %q", raw)
}

// settings 管理员设置
func (c *Console) settings(ctx context.Context) error {
	for {
		c.println()
		c.println("=== Настройки ===")
		c.printf("Испытательный участок: %s\n", c.users.TestArea())
		c.println("1. Список пользователей")
		c.println("2. Добавить пользователя")
		c.println("3. Удалить пользователя")
		c.println("4. Изменить название участка")
		c.println("0. Назад")

		choice, err := c.prompt(">")
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			c.listUsers(ctx)
		case "2":
			err = c.addUser(ctx)
		case "3":
			err = c.deleteUser(ctx)
		case "4":
			err = c.renameTestArea(ctx)
		case "0", "":
			return nil
		default:
			c.println("Неизвестная команда.")
		}

		if err != nil {
			if errors.Is(err, errors.ErrCanceled) {
				return err
			}
			c.showError(err)
		}
	}
}

func (c *Console) listUsers(ctx context.Context) {
	c.println("Список пользователей:")
	for _, u := range c.users.ListUsers(ctx) {
		c.printf("  %s - %s (%s)\n", u.ID, u.FullName(), u.Role)
	}
}

func (c *Console) addUser(ctx context.Context) error {
	var req service.AddUserRequest
	fields := []struct {
		label string
		dst   *string
	}{
		{"Идентификатор пользователя:", &req.UserID},
		{"Фамилия:", &req.LastName},
		{"Имя:", &req.FirstName},
		{"Отчество:", &req.MiddleName},
	}
	for _, f := range fields {
		v, err := c.prompt(f.label)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	var err error
	if req.Password, err = c.password("Пароль:"); err != nil {
		return err
	}
	if req.ConfirmPassword, err = c.password("Повтор пароля:"); err != nil {
		return err
	}

	user, err := c.users.AddUser(ctx, c.user.ID, &req)
	if err != nil {
		return err
	}
	c.printf("Пользователь %s добавлен.\n", user.ID)
	return nil
}

func (c *Console) deleteUser(ctx context.Context) error {
	c.listUsers(ctx)
	id, err := c.prompt("Идентификатор пользователя для удаления:")
	if err != nil {
		return err
	}
	if id == "" {
		c.println("Выберите пользователя для удаления.")
		return nil
	}
	if id == c.user.ID {
		c.println("Нельзя удалить текущего пользователя.")
		return nil
	}
	ok, err := c.confirm("Удалить пользователя " + id + "?")
	if err != nil || !ok {
		return err
	}
	if err := c.users.DeleteUser(ctx, c.user.ID, id); err != nil {
		return err
	}
	c.printf("Пользователь %s удален.\n", id)
	return nil
}

func (c *Console) renameTestArea(ctx context.Context) error {
	name, err := c.prompt("Введите новое название:")
	if err != nil {
		return err
	}
	if name == "" {
		return nil
	}
	if err := c.users.RenameTestArea(ctx, c.user.ID, name); err != nil {
		return err
	}
	c.printf("Название: %s\n", c.users.TestArea())
	return nil
}
