package conversation

const (
	txtWelcome       = "Привет! Ты подписан на уведомления.\nВыбери действие в меню ниже:"
	txtUnsubscribed  = "Ты отписан от рассылки. Чтобы подписаться снова, отправь /start."
	txtHelp          = "Команды:\n/start — подписаться и открыть меню\n/stop — отписаться от рассылки\n/cancel — отменить текущее действие\n/help — эта справка"
	txtMainMenu      = "Главное меню:"
	txtAdminMenu     = "Админ-меню:"
	txtNoAdminMenu   = "У вас нет доступа к админ-меню."
	txtNoAccess      = "Нет доступа"
	txtCancelled     = "Действие отменено."
	txtCancelToast   = "Отменено"
	txtFailure       = "Произошла ошибка при обработке сообщения"
	txtFailureToast  = "Произошла ошибка"
	txtAllHeading    = "Все ДЗ:"
	txtTomorrowHead  = "ДЗ на завтра:"
	txtResultsHead   = "Результаты:"
	txtSubjectHeadF  = "ДЗ по предмету %s:"
	txtPickSubject   = "Выберите предмет:"
	txtAskDate       = "Введите дату в формате дд.мм.гггг"
	txtBadDate       = "Неверный формат. Введите дату как дд.мм.гггг"
	txtPickEntrySubj = "Выберите предмет для ДЗ:"
	txtAskTitle      = "Введите название задания (например: ДЗ, Типовой и т.д.)"
	txtEmptyTitle    = "Название не может быть пустым. Введите название задания"
	txtAskDesc       = "Введите описание задания (или «-», чтобы пропустить)"
	txtAskDue        = "Введите дату на которую это задание (дд.мм.гггг)"
	txtBadDue        = "Неверный формат даты. Введите дд.мм.гггг"
	txtNoticeAdded   = "ДЗ добавлено ✅"
	txtAskBroadcast  = "Введите текст рассылки"
	txtEmptyBcast    = "Текст рассылки не может быть пустым. Введите текст рассылки"
	txtLongBcastF    = "Текст рассылки длиннее %d символов. Сократите его и отправьте снова"
	txtBcastStarted  = "Начинаю рассылку…"
	txtBcastFailed   = "Не удалось запустить рассылку, попробуйте позже."
	txtBcastDoneF    = "Рассылка завершена. Успехов: %d, ошибок: %d"
)
